// Command angzarr-embedded runs the core engine in the same process as a
// small, compiled-in demonstration aggregate, the "embedded" deployment
// mode from spec §6: no sidecar, no discovery lookup, the ClientLogic
// table is populated directly via bootstrap.ClientLogicRegistry.Register
// before the server starts serving.
//
// Grounded on cuemby-warren/cmd/warren/main.go's rootCmd/PersistentFlags/
// Execute shape and on examples/go/agg-order/main.go's pattern of a single
// compiled binary owning both the engine and its business logic.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/anypb"

	"github.com/benjaminabbitt/angzarr-core/internal/aggregate"
	"github.com/benjaminabbitt/angzarr-core/internal/bootstrap"
	"github.com/benjaminabbitt/angzarr-core/internal/config"
	"github.com/benjaminabbitt/angzarr-core/internal/logging"
	"github.com/benjaminabbitt/angzarr-core/internal/transport/grpcx"
	"github.com/benjaminabbitt/angzarr-core/pb"
)

var (
	logLevel   string
	logJSON    bool
	demoDomain string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "angzarr-embedded",
	Short: "angzarr-core engine embedded with a demonstration aggregate",
	RunE:  runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", true, "emit logs as JSON")
	rootCmd.Flags().StringVar(&demoDomain, "demo-domain", "echo", "domain name the built-in demonstration aggregate registers under")
}

func runServe(cmd *cobra.Command, args []string) error {
	logging.Init(logging.Config{Level: logging.Level(logLevel), JSONOutput: logJSON})

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	registry := bootstrap.NewClientLogicRegistry()
	registry.Register(demoDomain, echoLogic{})

	ctx := context.Background()
	_, cleanup, err := bootstrap.Build(ctx, cfg, registry.Resolve, nil)
	if err != nil {
		return err
	}
	defer cleanup()

	bootstrap.LogStartup("angzarr-embedded", cfg)

	registrar := func(*grpc.Server) {}
	return grpcx.Run(cfg.Transport, registrar, grpcx.ServerOptions{
		ServiceName:      "angzarr.embedded",
		EnableReflection: true,
	})
}

// echoLogic is the built-in demonstration aggregate: every command page's
// payload is persisted verbatim as the next event page. It exists to give
// the embedded binary something to run end-to-end without depending on any
// externally-defined business domain.
type echoLogic struct{}

func (echoLogic) Handle(_ context.Context, cmd aggregate.ContextualCommand) (aggregate.BusinessResponse, error) {
	next := cmd.Events.NextSequence()
	pages := make([]pb.EventPage, 0, len(cmd.Command.Pages))
	for i, cp := range cmd.Command.Pages {
		pages = append(pages, pb.EventPage{
			Sequence: next + uint64(i),
			Event:    cp.Command,
		})
	}
	return aggregate.BusinessResponse{Events: pages}, nil
}

func (echoLogic) Replay(context.Context, aggregate.ReplayRequest) (*anypb.Any, error) {
	return nil, aggregate.ErrReplayUnimplemented
}

var _ aggregate.ClientLogic = echoLogic{}
