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

package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/arion/zmqjob/internal/callback"
	"github.com/arion/zmqjob/internal/logger"
	"github.com/arion/zmqjob/internal/proctitle"
	"github.com/arion/zmqjob/internal/status"
	"github.com/arion/zmqjob/internal/worker"
)

var (
	workerBackendAddr string
	workerIdentity    string
	workerMaxRequests int
)

// workerCmd is the internal re-exec entrypoint the supervisor forks;
// it is not meant for end users, hence the short description and its
// absence from any user-facing documentation.
var workerCmd = &cobra.Command{
	Use:    "worker",
	Short:  "internal: run a single worker process (invoked by the supervisor)",
	Hidden: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger.SetSilentMode(false)
		log := logger.New()

		backendPort := workerBackendAddr
		if i := strings.LastIndex(backendPort, ":"); i >= 0 {
			backendPort = backendPort[i+1:]
		}
		_ = proctitle.Set(fmt.Sprintf("zmq worker %s", backendPort))

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		identity := workerIdentity
		if identity == "" {
			identity = fmt.Sprintf("child_%d", os.Getpid())
		}

		var statusClient *status.Client
		if addr := os.Getenv(status.EnvAddr); addr != "" {
			client, err := status.Dial(ctx, addr, identity)
			if err != nil {
				log.Warn().Err(err).Msg("failed to dial status channel, continuing without status reporting")
			} else {
				statusClient = client
			}
		}

		w, err := worker.New(ctx, worker.Config{
			BackendAddr:  workerBackendAddr,
			Identity:     identity,
			Handler:      callback.Echo,
			Policy:       worker.ErrorFramedReply,
			MaxRequests:  workerMaxRequests,
			StatusClient: statusClient,
			Pid:          os.Getpid(),
		})
		if err != nil {
			return fmt.Errorf("create worker: %w", err)
		}
		defer w.Close()

		if err := w.Announce(); err != nil {
			return fmt.Errorf("announce READY: %w", err)
		}

		if err := w.Serve(); err != nil {
			log.Info().Err(err).Msg("worker serve loop exited")
		}
		return nil
	},
}

func init() {
	workerCmd.Flags().StringVar(&workerBackendAddr, "backend-addr", "", "backend address to connect to")
	workerCmd.Flags().StringVar(&workerIdentity, "identity", "", "worker identity (defaults to child_<pid>)")
	workerCmd.Flags().IntVar(&workerMaxRequests, "max-requests", 0, "requests served before exiting (0 = unbounded)")
	_ = workerCmd.MarkFlagRequired("backend-addr")
}
