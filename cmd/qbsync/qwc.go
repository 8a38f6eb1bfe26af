package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nebg-ship/190Group-Analytics-Dashboard/internal/infrastructure/qwc"
)

// NewQWCCommand creates the qwc subcommand, which writes the Web Connector descriptor
func NewQWCCommand(root *RootOptions) *cobra.Command {
	var (
		output string
		stdout bool
	)

	cmd := &cobra.Command{
		Use:   "qwc",
		Short: "Generate the .qwc file that registers this service with the Web Connector",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := root.cfg
			opts := qwc.Options{
				AppName:         cfg.QWC.AppName,
				AppURL:          cfg.QWC.AppURL,
				CertURL:         cfg.QWC.CertURL,
				AppDescription:  cfg.QWC.AppDescription,
				AppSupport:      cfg.QWC.AppSupport,
				UserName:        cfg.QBWC.Username,
				OwnerID:         cfg.QWC.OwnerID,
				FileID:          cfg.QWC.FileID,
				RunEveryMinutes: cfg.QWC.RunEveryMinutes,
				ReadOnly:        cfg.QWC.ReadOnly,
			}
			if opts.AppURL == "" {
				host := cfg.Server.Host
				if host == "" || host == "0.0.0.0" {
					host = "localhost"
				}
				opts.AppURL = fmt.Sprintf("http://%s:%d/qbwc", host, cfg.Server.Port)
			}

			if stdout {
				data, err := qwc.Render(opts)
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}

			path := strings.TrimSpace(output)
			if path == "" {
				path = cfg.QWC.Output
			}
			if err := qwc.WriteFile(path, opts); err != nil {
				return err
			}
			root.log.Info("Wrote Web Connector descriptor", zap.String("path", path), zap.String("app_url", opts.AppURL))
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "descriptor path (default qwc.output)")
	cmd.Flags().BoolVar(&stdout, "stdout", false, "print the descriptor instead of writing a file")
	return cmd
}
