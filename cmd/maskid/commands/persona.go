package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"maskid/internal/crypto"
	"maskid/internal/domain"
)

func personaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "persona",
		Short: "Create, inspect and manage personas",
	}
	cmd.AddCommand(
		personaCreateCmd(),
		personaRecoverCmd(),
		personaImportJWKCmd(),
		personaListCmd(),
		personaShowCmd(),
		personaRenameCmd(),
		personaLoginCmd(true),
		personaLoginCmd(false),
		personaSetupCmd(),
		personaDeleteCmd(),
	)
	return cmd
}

func personaCreateCmd() *cobra.Command {
	var nickname string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Generate a new mnemonic-backed persona",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := wire.Personas.CreatePersonaByMnemonic(cmd.Context(), nickname, password)
			if err != nil {
				return err
			}
			p, err := wire.Personas.QueryPersona(cmd.Context(), id)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Persona created.\nIdentifier:  %s\nFingerprint: %s\n", id, crypto.ShortFingerprint(id))
			if p.Mnemonic != nil {
				fmt.Fprintf(out, "Mnemonic:    %s\n", p.Mnemonic.Words)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&nickname, "nickname", "", "persona nickname")
	return cmd
}

func personaRecoverCmd() *cobra.Command {
	var nickname string
	cmd := &cobra.Command{
		Use:   "recover <mnemonic words...>",
		Short: "Recover a persona from its mnemonic",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := wire.Personas.CreatePersonaByMnemonicV2(cmd.Context(), strings.Join(args, " "), nickname, password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Persona recovered.\nIdentifier:  %s\nFingerprint: %s\n", id, crypto.ShortFingerprint(id))
			return nil
		},
	}
	cmd.Flags().StringVar(&nickname, "nickname", "", "persona nickname")
	return cmd
}

// jwkFile is the document read by "persona import-jwk".
type jwkFile struct {
	PublicKey  domain.ECPublicKey     `json:"publicKey"`
	PrivateKey *domain.ECPrivateKey   `json:"privateKey,omitempty"`
	LocalKey   *domain.AESKey         `json:"localKey,omitempty"`
	Mnemonic   *domain.MnemonicRecord `json:"mnemonic,omitempty"`
	Nickname   string                 `json:"nickname,omitempty"`
}

func personaImportJWKCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import-jwk <file>",
		Short: "Create a persona from JSON Web Keys",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var f jwkFile
			if err := json.Unmarshal(b, &f); err != nil {
				return fmt.Errorf("decode %s: %w", args[0], err)
			}
			id, err := wire.Personas.CreatePersonaByJSONWebKey(cmd.Context(), domain.PersonaKeys{
				PublicKey:  f.PublicKey,
				PrivateKey: f.PrivateKey,
				LocalKey:   f.LocalKey,
				Mnemonic:   f.Mnemonic,
				Nickname:   f.Nickname,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Persona imported.\nIdentifier: %s\n", id)
			return nil
		},
	}
}

func personaListCmd() *cobra.Command {
	var (
		name        string
		onlyPrivate bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List personas",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q := domain.PersonaQuery{NameContains: name}
			if onlyPrivate {
				q.HasPrivateKey = &onlyPrivate
			}
			personas, err := wire.Personas.QueryPersonasWithQuery(cmd.Context(), q)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, p := range personas {
				mark := " "
				if p.HasPrivateKey {
					mark = "*"
				}
				fmt.Fprintf(out, "%s %s  %-20s  profiles=%d\n", mark, crypto.ShortFingerprint(p.Identifier), p.Nickname, p.LinkedProfiles.Len())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "nickname substring filter")
	cmd.Flags().BoolVar(&onlyPrivate, "private", false, "only personas holding a private key")
	return cmd
}

func personaShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <persona-id>",
		Short: "Print a persona view",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parsePersonaArg(args[0])
			if err != nil {
				return err
			}
			p, err := wire.Personas.QueryPersona(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printJSON(cmd, p)
		},
	}
}

func personaRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <persona-id> <nickname>",
		Short: "Change a persona nickname",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parsePersonaArg(args[0])
			if err != nil {
				return err
			}
			return wire.Personas.RenamePersona(cmd.Context(), id, args[1])
		},
	}
}

func personaLoginCmd(login bool) *cobra.Command {
	use, short := "logout", "Mark a persona as logged out"
	if login {
		use, short = "login", "Mark a persona as logged in"
	}
	return &cobra.Command{
		Use:   use + " <persona-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parsePersonaArg(args[0])
			if err != nil {
				return err
			}
			if login {
				return wire.Personas.LoginPersona(cmd.Context(), id)
			}
			return wire.Personas.LogoutPersona(cmd.Context(), id)
		},
	}
}

func personaSetupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup <persona-id>",
		Short: "Finish setup of a persona that links a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parsePersonaArg(args[0])
			if err != nil {
				return err
			}
			return wire.Personas.SetupPersona(cmd.Context(), id)
		},
	}
}

func personaDeleteCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "delete <persona-id>",
		Short: "Delete a persona",
		Long: "Delete a persona after detaching its profiles. Without --force the " +
			"persona is kept when it still holds a private key.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parsePersonaArg(args[0])
			if err != nil {
				return err
			}
			mode := domain.SafeDelete
			if force {
				mode = domain.DeleteEvenWithPrivate
			}
			return wire.Personas.DeletePersona(cmd.Context(), id, mode)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "delete even when a private key would be lost")
	return cmd
}
