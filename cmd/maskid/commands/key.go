package commands

import (
	"github.com/spf13/cobra"

	"maskid/internal/domain"
)

func keyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Print keys as JSON Web Keys",
	}
	cmd.AddCommand(
		keyPrintCmd("local", "Print the local key of a persona or profile",
			func(cmd *cobra.Command, id domain.Identifier) (any, error) {
				return wire.Personas.QueryLocalKey(cmd.Context(), id)
			}),
		keyPrintCmd("public", "Print the public key of a persona or profile",
			func(cmd *cobra.Command, id domain.Identifier) (any, error) {
				return wire.Personas.QueryPublicKey(cmd.Context(), id)
			}),
	)
	return cmd
}

func keyPrintCmd(use, short string, query func(*cobra.Command, domain.Identifier) (any, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <persona-id|network/user>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseIdentifierArg(args[0])
			if err != nil {
				return err
			}
			k, err := query(cmd, id)
			if err != nil {
				return err
			}
			return printJSON(cmd, k)
		},
	}
}
