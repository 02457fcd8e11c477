package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"maskid/internal/app"
	"maskid/internal/domain"
)

var (
	home      string
	storeKind string
	redisURL  string
	logLevel  string
	password  string

	wire *app.Wire
)

// Execute runs the CLI until ctx is canceled.
func Execute(ctx context.Context) error {
	return execute(ctx, newRootCmd())
}

// execute runs root and releases the wire whether or not the command failed.
func execute(ctx context.Context, root *cobra.Command) error {
	err := root.ExecuteContext(ctx)
	if cerr := closeWire(); err == nil {
		err = cerr
	}
	return err
}

func closeWire() error {
	if wire == nil {
		return nil
	}
	err := wire.Close()
	wire = nil
	return err
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "maskid",
		Short:        "Persona and profile identity manager",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig(home)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("store") {
				cfg.Store = storeKind
			}
			if flags.Changed("redis") {
				cfg.RedisURL = redisURL
			}
			if flags.Changed("log-level") {
				cfg.LogLevel = logLevel
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			logger, err := app.NewLogger(os.Stderr, cfg)
			if err != nil {
				return err
			}
			wire, err = app.NewWire(cmd.Context(), cfg, logger)
			return err
		},
	}

	root.PersistentFlags().StringVar(&home, "home", "", "data dir (default ~/.maskid)")
	root.PersistentFlags().StringVar(&storeKind, "store", "", "store backend: memory, file or sqlite")
	root.PersistentFlags().StringVar(&redisURL, "redis", "", "redis URL for the avatar cache")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	root.PersistentFlags().StringVarP(&password, "password", "p", "", "mnemonic password or backup passphrase")

	root.AddCommand(personaCmd(), profileCmd(), keyCmd(), backupCmd())
	return root
}

// printJSON writes v indented to the command's output.
func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parsePersonaArg(s string) (domain.PersonaIdentifier, error) {
	id, err := domain.ParsePersonaIdentifier(s)
	if err != nil {
		return domain.PersonaIdentifier{}, fmt.Errorf("invalid persona identifier %q: %w", s, err)
	}
	return id, nil
}

// parseProfileArg accepts "person:<network>/<user>" or "<network>/<user>".
func parseProfileArg(s string) (domain.ProfileIdentifier, error) {
	if !strings.HasPrefix(s, "person:") {
		s = "person:" + s
	}
	id, err := domain.ParseProfileIdentifier(s)
	if err != nil {
		return domain.ProfileIdentifier{}, fmt.Errorf("invalid profile identifier %q: %w", s, err)
	}
	return id, nil
}

// parseIdentifierArg accepts a persona or profile identifier.
func parseIdentifierArg(s string) (domain.Identifier, error) {
	if strings.HasPrefix(s, "ec_key:") {
		return parsePersonaArg(s)
	}
	return parseProfileArg(s)
}
