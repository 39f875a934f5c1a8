package cli

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"engram/internal/config"
	"engram/internal/server"
	"engram/pkg/logger"
)

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the engram server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.GetConfig()

			srv, err := server.New(server.Options{
				Config:  cfg,
				Logger:  *logger.Get(),
				Version: Version,
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return srv.Run(ctx)
		},
	}
}
