package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tmichett/Fedora-Remix-Lab/internal/output"
)

var (
	outputFormat string
	noHeaders    bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the observed state of the lab",
	Long: `Show the observed state of the lab network and every declared VM.

Each VM row includes the lifecycle state, the reserved MAC and IP
address, and the address the DHCP server actually leased (when the
VM holds an active lease).

Output formats:
  -o table  Human-readable table (default)
  -o yaml   YAML status document
  -o json   JSON status document`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := output.ValidateFormat(outputFormat); err != nil {
			return err
		}

		r, client, err := newReconciler(configPath)
		if err != nil {
			return err
		}
		defer closeClient(client)

		status, err := r.Status(context.Background())
		if err != nil {
			return fmt.Errorf("failed to query lab status: %w", err)
		}

		formatter, err := output.NewFormatter(output.Options{
			Format:    output.Format(outputFormat),
			NoHeaders: noHeaders,
		})
		if err != nil {
			return err
		}

		result, err := formatter.FormatStatus(status)
		if err != nil {
			return fmt.Errorf("failed to format output: %w", err)
		}

		fmt.Print(result)
		return nil
	},
}

func init() {
	statusCmd.Flags().StringVarP(&outputFormat, "output", "o", "table", "output format (table, yaml, json)")
	statusCmd.Flags().BoolVar(&noHeaders, "no-headers", false, "omit headers in table output")
}
