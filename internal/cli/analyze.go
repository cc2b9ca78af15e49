package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/truthvision/truthvision-go/internal/config"
	"github.com/truthvision/truthvision-go/internal/container"
	"github.com/truthvision/truthvision-go/internal/report"
)

func analyzeCommand(a *app) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "analyze <ref>...",
		Short: "Analyze local files or remote media references",
		Long: `Analyze one or more images or videos. A reference is a local path, a file://,
http(s):// or azblob://<container>/<blob> URL. Each reference is analyzed in its
own session and the command exits non-zero if any of them fails.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter, err := report.FormatterFor(format)
			if err != nil {
				return err
			}

			c, err := container.NewContainer(a.cfg)
			if err != nil {
				return err
			}
			defer c.Close()

			outcomes := c.Runner().Run(cmd.Context(), args)
			if err := formatter.Write(cmd.OutOrStdout(), outcomes); err != nil {
				return fmt.Errorf("failed to write report: %w", err)
			}

			failed := 0
			for _, o := range outcomes {
				if o.Failed() {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d references failed", failed, len(outcomes))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().IntP("workers", "w", 1, "Number of references analyzed concurrently")
	if err := bindFlags(a.v, cmd.Flags(), map[string]string{config.KeyWorkers: "workers"}); err != nil {
		panic(err)
	}

	return cmd
}
