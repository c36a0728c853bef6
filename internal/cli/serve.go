package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"

	"github.com/hupe1980/paymesh"
	"github.com/hupe1980/paymesh/config"
	"github.com/hupe1980/paymesh/internal/version"
	"github.com/hupe1980/paymesh/logging"
	"github.com/hupe1980/paymesh/server"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the paymesh HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	logger, err := logging.NewServiceLogger(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.File)
	if err != nil {
		return err
	}

	mesh, err := paymesh.New(func(o *paymesh.Options) {
		o.Config = cfg
		o.Logger = logger
	})
	if err != nil {
		_ = logger.Close()
		return err
	}

	srv := server.New(mesh, cfg.Server, func(o *server.Options) {
		o.Logger = logger
		o.Version = version.Version
	})

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st := mesh.Status()
	logger.Info("paymeshd.starting",
		"version", version.Version,
		"addr", cfg.Server.Addr(),
		"model", cfg.Model.Provider+"/"+cfg.Model.Name,
		"skyfire_mock", st.SkyfireMock,
		"dappier_mock", st.DappierMock,
	)

	var result error
	if err := srv.Start(ctx); err != nil {
		result = multierror.Append(result, err)
	}
	if err := mesh.Close(); err != nil {
		result = multierror.Append(result, err)
	}

	logger.Info("paymeshd.stopped")

	if err := logger.Close(); err != nil {
		result = multierror.Append(result, err)
	}

	return result
}
