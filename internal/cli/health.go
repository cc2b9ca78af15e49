package cli

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/truthvision/truthvision-go/internal/analysis"
	"github.com/truthvision/truthvision-go/internal/transport"
)

const healthTimeout = 10 * time.Second

func healthCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the detection service is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := analysis.NewClient(a.cfg.APIBaseURL, a.cfg.RequestTimeout)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), healthTimeout)
			defer cancel()

			if err := client.Health(ctx); err != nil {
				return fmt.Errorf("detection service at %s is unavailable: %w", client.BaseURL(), err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %s\n", client.BaseURL())
			return nil
		},
	}
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "truthvision %s (%s %s/%s)\n",
				transport.Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
}
