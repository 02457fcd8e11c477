package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var errNoPassphrase = errors.New("a passphrase is required (-p)")

func backupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Export or restore a passphrase-sealed backup",
	}
	cmd.AddCommand(backupExportCmd(), backupImportCmd())
	return cmd
}

func backupExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <file>",
		Short: "Write every persona and profile to a sealed file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				return errNoPassphrase
			}
			blob, err := wire.Backup.Export(cmd.Context(), password)
			if err != nil {
				return err
			}
			if err := os.WriteFile(args[0], blob, 0o600); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Backup written to %s\n", args[0])
			return nil
		},
	}
}

func backupImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Restore personas and profiles from a sealed file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				return errNoPassphrase
			}
			blob, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			report, err := wire.Backup.Import(cmd.Context(), password, blob)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Restored %d personas (%d skipped) and %d profiles.\n",
				len(report.Personas), len(report.Skipped), report.Profiles)
			return nil
		},
	}
}
