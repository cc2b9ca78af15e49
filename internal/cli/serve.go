package cli

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/truthvision/truthvision-go/internal/config"
	"github.com/truthvision/truthvision-go/internal/container"
	"github.com/truthvision/truthvision-go/internal/logger"
)

const shutdownTimeout = 30 * time.Second

func serveCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the session API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := container.NewContainer(a.cfg)
			if err != nil {
				return err
			}
			defer c.Close()

			ln, err := net.Listen("tcp", a.cfg.ServerAddress())
			if err != nil {
				return err
			}
			return runServer(cmd.Context(), c.Handler(), ln)
		},
	}

	cmd.Flags().String("host", "127.0.0.1", "Address to listen on")
	cmd.Flags().String("port", "8080", "Port to listen on")
	if err := bindFlags(a.v, cmd.Flags(), map[string]string{
		config.KeyHost: "host",
		config.KeyPort: "port",
	}); err != nil {
		panic(err)
	}

	return cmd
}

// runServer serves handler on ln until ctx is done, then shuts down gracefully.
func runServer(ctx context.Context, handler http.Handler, ln net.Listener) error {
	server := &http.Server{
		Handler: handler,
		// Uploads can be large; only the header read is bounded
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithFields(logrus.Fields{
			"address": ln.Addr().String(),
		}).Info("Starting HTTP server")

		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for the signal context to end or the server to fail
	select {
	case err := <-errCh:
		if err != nil {
			logger.WithError(err).Error("Failed to start server")
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down server...")

	// Create a deadline for shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
		return err
	}

	<-errCh
	logger.Info("Server exited")
	return nil
}
