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
	"time"

	"github.com/spf13/cobra"

	"github.com/arion/zmqjob/internal/broker"
	"github.com/arion/zmqjob/internal/childtable"
	"github.com/arion/zmqjob/internal/config"
	"github.com/arion/zmqjob/internal/logger"
	"github.com/arion/zmqjob/internal/privdrop"
	"github.com/arion/zmqjob/internal/proctitle"
	"github.com/arion/zmqjob/internal/signals"
	"github.com/arion/zmqjob/internal/status"
	"github.com/arion/zmqjob/internal/supervisor"
)

var (
	brokerConfigPath  string
	brokerPorts       []int
	brokerMinServers  int
	brokerMaxServers  int
	brokerMinSpare    int
	brokerMaxSpare    int
	brokerMaxRequests int
	brokerUser        string
	brokerGroup       string
	brokerLogLevel    string
	brokerCheckInterval int
	brokerShutdownGrace int
)

var brokerCmd = &cobra.Command{
	Use:   "broker --port <frontend_port>,<backend_port>",
	Short: "Start the zmqjob broker daemon",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := buildBrokerConfig(args)
		if err != nil {
			exitWithError(1, err)
		}
		if err := cfg.Validate(); err != nil {
			exitWithError(1, fmt.Errorf("configuration error: %w", err))
		}

		logger.SetSilentMode(false)
		logger.SetLevel(cfg.LogLevel)
		log := logger.New()

		_ = proctitle.Set(fmt.Sprintf("zmq broker %d-%d", cfg.FrontendPort, cfg.BackendPort))

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		table := childtable.New()

		statusCh, err := status.Bind(ctx)
		if err != nil {
			exitWithError(2, fmt.Errorf("bind status channel: %w", err))
		}
		defer statusCh.Close()

		sup := supervisor.New(supervisor.Params{
			MinServers:      cfg.MinServers,
			MaxServers:      cfg.MaxServers,
			MinSpareServers: cfg.MinSpareServers,
			MaxSpareServers: cfg.MaxSpareServers,
			MaxRequests:     cfg.MaxRequests,
		}, table, statusCh.Addr(), func(identity string) []string {
			return []string{
				"--backend-addr", fmt.Sprintf("tcp://127.0.0.1:%d", cfg.BackendPort),
				"--identity", identity,
				"--max-requests", fmt.Sprintf("%d", cfg.MaxRequests),
			}
		})

		grace := time.Duration(cfg.ShutdownGraceSec) * time.Second

		// b is assigned below, once broker.New returns; the Shutdown
		// action only fires from dispatcher.Poll, which only b.Run
		// calls, so b is already set whenever it runs.
		var b *broker.Broker
		dispatcher := signals.New(signals.Actions{
			Shutdown: func(kindQuit bool) {
				if b != nil {
					b.BeginDrain(grace)
				} else {
					cancel()
				}
			},
			RestartAll: sup.RestartAll,
			Reap:       sup.Reap,
			GrowPool:   sup.GrowPool,
			ShrinkPool: sup.ShrinkPool,
		})
		defer dispatcher.Stop()

		frontAddr := fmt.Sprintf("tcp://127.0.0.1:%d", cfg.FrontendPort)
		backAddr := fmt.Sprintf("tcp://127.0.0.1:%d", cfg.BackendPort)

		b, err = broker.New(ctx, frontAddr, backAddr, table, sup, dispatcher, time.Duration(cfg.CheckIntervalSec)*time.Second)
		if err != nil {
			exitWithError(2, fmt.Errorf("bind broker sockets: %w", err))
		}
		defer b.Close()

		if err := privdrop.To(cfg.User, cfg.Group); err != nil {
			log.Warn().Err(err).Msg("privilege drop failed, continuing with current privileges")
		}

		go trackStatusReports(ctx, statusCh, table)

		for i := 0; i < cfg.MinServers; i++ {
			if err := sup.Fork(); err != nil {
				log.Error().Err(err).Msg("failed to fork initial worker")
			}
		}

		log.Info().
			Str("frontend", frontAddr).
			Str("backend", backAddr).
			Int("min_servers", cfg.MinServers).
			Msg("broker started")

		if err := b.Run(ctx); err != nil && ctx.Err() == nil {
			return fmt.Errorf("broker loop: %w", err)
		}
		log.Info().Msg("broker shut down cleanly")
		return nil
	},
}

func trackStatusReports(ctx context.Context, ch *status.Channel, table *childtable.Table) {
	for report := range ch.Reader(ctx) {
		table.SetStatus(report.Pid, report.Identity, report.Status)
	}
}

func buildBrokerConfig(args []string) (config.Config, error) {
	cfg := config.Default()
	if brokerConfigPath != "" {
		loaded, err := config.Load(brokerConfigPath)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}

	if brokerCmd.Flags().Changed("port") {
		if len(brokerPorts) != 2 {
			return config.Config{}, fmt.Errorf("--port requires exactly two values (frontend_port,backend_port), got %d", len(brokerPorts))
		}
		cfg.FrontendPort = brokerPorts[0]
		cfg.BackendPort = brokerPorts[1]
	}

	applyIfSet := func(flag string, dest *int, val int) {
		if brokerCmd.Flags().Changed(flag) {
			*dest = val
		}
	}
	applyIfSet("min-servers", &cfg.MinServers, brokerMinServers)
	applyIfSet("max-servers", &cfg.MaxServers, brokerMaxServers)
	applyIfSet("min-spare-servers", &cfg.MinSpareServers, brokerMinSpare)
	applyIfSet("max-spare-servers", &cfg.MaxSpareServers, brokerMaxSpare)
	applyIfSet("max-requests", &cfg.MaxRequests, brokerMaxRequests)
	applyIfSet("check-interval", &cfg.CheckIntervalSec, brokerCheckInterval)
	applyIfSet("shutdown-grace", &cfg.ShutdownGraceSec, brokerShutdownGrace)

	if brokerCmd.Flags().Changed("user") {
		cfg.User = brokerUser
	}
	if brokerCmd.Flags().Changed("group") {
		cfg.Group = brokerGroup
	}
	if brokerCmd.Flags().Changed("log-level") {
		cfg.LogLevel = brokerLogLevel
	}

	return cfg, nil
}

func init() {
	brokerCmd.Flags().StringVar(&brokerConfigPath, "config", "", "path to an optional YAML config file")
	brokerCmd.Flags().IntSliceVar(&brokerPorts, "port", nil, "frontend_port,backend_port (required unless set in --config)")
	brokerCmd.Flags().IntVar(&brokerMinServers, "min-servers", 0, "minimum worker pool size")
	brokerCmd.Flags().IntVar(&brokerMaxServers, "max-servers", 0, "maximum worker pool size")
	brokerCmd.Flags().IntVar(&brokerMinSpare, "min-spare-servers", 0, "minimum idle worker count")
	brokerCmd.Flags().IntVar(&brokerMaxSpare, "max-spare-servers", 0, "maximum idle worker count")
	brokerCmd.Flags().IntVar(&brokerMaxRequests, "max-requests", 0, "requests served before a worker exits (0 = unbounded)")
	brokerCmd.Flags().StringVar(&brokerUser, "user", "", "user to drop privileges to after bind")
	brokerCmd.Flags().StringVar(&brokerGroup, "group", "", "group to drop privileges to after bind")
	brokerCmd.Flags().StringVar(&brokerLogLevel, "log-level", "", "log level (debug, info, warn, error)")
	brokerCmd.Flags().IntVar(&brokerCheckInterval, "check-interval", 0, "housekeeping interval in seconds")
	brokerCmd.Flags().IntVar(&brokerShutdownGrace, "shutdown-grace", 0, "seconds to wait for in-flight requests to drain on shutdown")
}
