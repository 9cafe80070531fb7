// Copyright 2025 Arion Yau
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package callback defines the application-supplied request handler the
// worker runtime invokes for every dispatched request.
package callback

import "bytes"

// RequestHandler is the opaque bytes-to-bytes application callback a
// worker invokes for each request it receives.
type RequestHandler interface {
	Handle(request []byte) ([]byte, error)
}

// HandlerFunc adapts a plain function to a RequestHandler.
type HandlerFunc func(request []byte) ([]byte, error)

func (f HandlerFunc) Handle(request []byte) ([]byte, error) {
	return f(request)
}

// Echo is the default application callback: it returns the request
// payload unchanged.
var Echo RequestHandler = HandlerFunc(func(request []byte) ([]byte, error) {
	return request, nil
})

// Uppercase returns the request payload with ASCII letters upper-cased;
// used by the two-client test scenario.
var Uppercase RequestHandler = HandlerFunc(func(request []byte) ([]byte, error) {
	return bytes.ToUpper(request), nil
})
