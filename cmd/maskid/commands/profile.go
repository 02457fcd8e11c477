package commands

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"maskid/internal/crypto"
	"maskid/internal/domain"
)

func profileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Inspect profiles and manage their persona links",
	}
	cmd.AddCommand(
		profileShowCmd(),
		profileListCmd(),
		profileWhoamiCmd(),
		profileLinkCmd(),
		profileUnlinkCmd(),
		profileAvatarCmd(),
	)
	return cmd
}

func profileShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <network/user>",
		Short: "Print a profile view",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseProfileArg(args[0])
			if err != nil {
				return err
			}
			p, err := wire.Personas.QueryProfile(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printJSON(cmd, p)
		},
	}
}

func profileListCmd() *cobra.Command {
	var (
		network string
		user    string
		after   string
		count   int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List one page of profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			page := domain.ProfilePageRequest{Network: network, UserIDContains: user, Count: count}
			if after != "" {
				id, err := parseProfileArg(after)
				if err != nil {
					return err
				}
				page.After = &id
			}
			profiles, err := wire.Personas.QueryProfilesPaged(cmd.Context(), page)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, p := range profiles {
				linked := "-"
				if p.LinkedPersona != nil {
					linked = crypto.ShortFingerprint(p.LinkedPersona.Identifier)
				}
				fmt.Fprintf(out, "%-40s  %-20s  %s\n", p.Identifier, p.Nickname, linked)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&network, "network", "", "only profiles on this network")
	cmd.Flags().StringVar(&user, "user", "", "user id substring filter")
	cmd.Flags().StringVar(&after, "after", "", "start after this profile")
	cmd.Flags().IntVar(&count, "count", 20, "page size")
	return cmd
}

func profileWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami <network/user>",
		Short: "Print the persona linked to a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseProfileArg(args[0])
			if err != nil {
				return err
			}
			p, err := wire.Personas.QueryPersonaByProfile(cmd.Context(), id)
			if err != nil {
				return err
			}
			if p == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "No persona linked.")
				return nil
			}
			return printJSON(cmd, p)
		},
	}
}

func profileLinkCmd() *cobra.Command {
	var (
		nickname string
		state    string
	)
	cmd := &cobra.Command{
		Use:   "link <network/user> <persona-id>",
		Short: "Link a profile to an existing persona",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			profile, err := parseProfileArg(args[0])
			if err != nil {
				return err
			}
			persona, err := parsePersonaArg(args[1])
			if err != nil {
				return err
			}
			confirm := domain.ConnectionConfirmState(state)
			if !confirm.Valid() {
				return fmt.Errorf("unknown confirm state %q", state)
			}
			pub, err := wire.Personas.QueryPublicKey(cmd.Context(), persona)
			if err != nil {
				return err
			}
			if pub == nil {
				return domain.E(domain.KindNotFound, "link", "persona "+persona.String()+" not found")
			}
			details := domain.LinkedProfileDetails{ConnectionConfirmState: confirm}
			keys := domain.ProfilePersonaKeys{Nickname: nickname, PublicKey: *pub}
			return wire.Personas.CreateProfileWithPersona(cmd.Context(), profile, details, keys)
		},
	}
	cmd.Flags().StringVar(&nickname, "nickname", "", "profile nickname")
	cmd.Flags().StringVar(&state, "state", string(domain.ConnectionConfirmed), "confirm state: confirmed, pending or denied")
	return cmd
}

func profileUnlinkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unlink <network/user>",
		Short: "Detach a profile from its persona",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseProfileArg(args[0])
			if err != nil {
				return err
			}
			return wire.Personas.DetachProfile(cmd.Context(), id)
		},
	}
}

func profileAvatarCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "avatar <network/user> <image-file|data-url>",
		Short: "Cache an avatar for a profile",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseProfileArg(args[0])
			if err != nil {
				return err
			}
			dataURL := args[1]
			if !strings.HasPrefix(dataURL, "data:") {
				b, err := os.ReadFile(dataURL)
				if err != nil {
					return err
				}
				dataURL = "data:" + http.DetectContentType(b) + ";base64," + base64.StdEncoding.EncodeToString(b)
			}
			return wire.Personas.SetProfileAvatar(cmd.Context(), id, dataURL)
		},
	}
}
