// Command angzarr-standalone runs the core engine as its own process,
// talking to exactly one externally-running ClientLogic sidecar reachable
// at ANGZARR__TARGET__ADDRESS (spec §6's single-target sidecar topology).
// It does not spawn or supervise that sidecar process — spec.md's
// Non-goals explicitly exclude a standalone orchestrator that does so;
// this binary only dials an address it's given.
//
// Grounded on cuemby-warren/cmd/warren/main.go's rootCmd/PersistentFlags/
// Execute shape.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/benjaminabbitt/angzarr-core/internal/aggregate"
	"github.com/benjaminabbitt/angzarr-core/internal/bootstrap"
	"github.com/benjaminabbitt/angzarr-core/internal/config"
	"github.com/benjaminabbitt/angzarr-core/internal/discovery"
	"github.com/benjaminabbitt/angzarr-core/internal/logging"
	"github.com/benjaminabbitt/angzarr-core/internal/transport/grpcx"
)

var (
	logLevel string
	logJSON  bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "angzarr-standalone",
	Short: "angzarr-core engine as its own process, dispatching to one ClientLogic sidecar",
	RunE:  runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", true, "emit logs as JSON")
}

func runServe(cmd *cobra.Command, args []string) error {
	logging.Init(logging.Config{Level: logging.Level(logLevel), JSONOutput: logJSON})
	log := logging.Component("angzarr-standalone")

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	remote, err := bootstrap.DialRemote(cfg.Target)
	if err != nil {
		return err
	}
	defer remote.Close()

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := remote.Ping(pingCtx); err != nil {
		log.Warn().Err(err).Str("target", cfg.Target.Address).Msg("target not reporting healthy at startup, continuing anyway")
	}

	ctx := context.Background()
	core, cleanup, err := bootstrap.Build(ctx, cfg, singleTargetResolver(remote, cfg.Target.Domain), nil)
	if err != nil {
		return err
	}
	defer cleanup()

	if ep, err := core.Discovery.Resolve(discovery.KindAggregate, cfg.Target.Domain); err != nil {
		log.Warn().Err(err).Msg("discovery could not resolve the configured target domain")
	} else {
		log.Info().Str("domain", cfg.Target.Domain).Str("address", ep.Address).Msg("dispatching aggregate commands to target")
	}

	bootstrap.LogStartup("angzarr-standalone", cfg)

	registrar := func(*grpc.Server) {}
	return grpcx.Run(cfg.Transport, registrar, grpcx.ServerOptions{
		ServiceName:      "angzarr.standalone",
		EnableReflection: true,
	})
}

// singleTargetResolver builds a bootstrap.Resolver that serves only the one
// domain this process was configured to dispatch to; any other domain is a
// misrouted command.
func singleTargetResolver(remote *bootstrap.RemoteClientLogic, domain string) bootstrap.Resolver {
	return func(requested string) (aggregate.ClientLogic, error) {
		if requested != domain {
			return nil, fmt.Errorf("angzarr-standalone: not configured to serve domain %q (only %q)", requested, domain)
		}
		return remote, nil
	}
}
