package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode"

	"maskid/internal/domain"
	"maskid/internal/store"
)

const (
	formatVersion = 1

	// minPassphraseLength is the shortest passphrase Export accepts.
	minPassphraseLength = 12
)

var (
	// ErrWeakPassphrase is returned when an export passphrase fails the strength policy.
	ErrWeakPassphrase = fmt.Errorf(
		"passphrase is too weak (must be at least %d characters and include upper, lower, "+
			"number, and symbol)",
		minPassphraseLength,
	)

	// ErrWrongPassphrase is returned when a backup cannot be opened.
	ErrWrongPassphrase = store.ErrWrongPassphrase
)

// document is the plaintext inside a sealed backup.
type document struct {
	Version    int                    `json:"version"`
	ExportedAt time.Time              `json:"exportedAt"`
	Personas   []domain.PersonaRecord `json:"personas"`
	Profiles   []domain.ProfileRecord `json:"profiles"`
}

// Service exports and imports persona backups.
type Service struct {
	store    domain.PersonaStore
	personas domain.PersonaService
	logger   *slog.Logger
	params   store.ScryptParams
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithScryptParams overrides the key-derivation cost of new backups.
func WithScryptParams(p store.ScryptParams) Option {
	return func(s *Service) { s.params = p }
}

// New returns a backup service reading from st and restoring through personas.
func New(st domain.PersonaStore, personas domain.PersonaService, opts ...Option) *Service {
	s := &Service{
		store:    st,
		personas: personas,
		logger:   slog.New(slog.DiscardHandler),
		params:   store.DefaultScryptParams,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Export seals every persona and profile record under passphrase.
func (s *Service) Export(ctx context.Context, passphrase string) ([]byte, error) {
	if !isSecurePassphrase(passphrase) {
		return nil, ErrWeakPassphrase
	}
	personas, err := s.store.QueryPersonas(ctx, domain.PersonaQuery{})
	if err != nil {
		return nil, domain.StoreFailure("export personas", err)
	}
	profiles, err := s.store.QueryProfiles(ctx, domain.ProfileQuery{})
	if err != nil {
		return nil, domain.StoreFailure("export profiles", err)
	}

	raw, err := json.Marshal(document{
		Version:    formatVersion,
		ExportedAt: s.now(),
		Personas:   personas,
		Profiles:   profiles,
	})
	if err != nil {
		return nil, fmt.Errorf("encode backup: %w", err)
	}
	blob, err := store.SealWithParams(passphrase, raw, s.params)
	if err != nil {
		return nil, fmt.Errorf("seal backup: %w", err)
	}
	s.logger.InfoContext(ctx, "backup exported",
		slog.Int("personas", len(personas)),
		slog.Int("profiles", len(profiles)),
	)
	return blob, nil
}

// Import opens blob and restores its contents. Personas without links that
// already exist are reported as skipped; linked personas are merged.
func (s *Service) Import(ctx context.Context, passphrase string, blob []byte) (domain.ImportReport, error) {
	raw, err := store.Open(passphrase, blob)
	if err != nil {
		return domain.ImportReport{}, err
	}
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return domain.ImportReport{}, fmt.Errorf("decode backup: %w", err)
	}
	if doc.Version != formatVersion {
		return domain.ImportReport{}, fmt.Errorf("unsupported backup version %d", doc.Version)
	}

	var report domain.ImportReport
	for _, r := range doc.Personas {
		restored, err := s.restorePersona(ctx, r)
		if err != nil {
			return report, fmt.Errorf("restore persona %s: %w", r.Identifier, err)
		}
		if restored {
			report.Personas = append(report.Personas, r.Identifier)
		} else {
			report.Skipped = append(report.Skipped, r.Identifier)
		}
	}

	n, err := s.restoreProfiles(ctx, doc.Profiles)
	if err != nil {
		return report, err
	}
	report.Profiles = n

	s.logger.InfoContext(ctx, "backup imported",
		slog.Int("personas", len(report.Personas)),
		slog.Int("skipped", len(report.Skipped)),
		slog.Int("profiles", report.Profiles),
	)
	return report, nil
}

func (s *Service) restorePersona(ctx context.Context, r domain.PersonaRecord) (bool, error) {
	links := r.LinkedProfiles.Entries()
	if len(links) == 0 {
		_, err := s.personas.CreatePersonaByJSONWebKey(ctx, domain.PersonaKeys{
			PublicKey:     r.PublicKey,
			PrivateKey:    r.PrivateKey,
			LocalKey:      r.LocalKey,
			Nickname:      r.Nickname,
			Mnemonic:      r.Mnemonic,
			Uninitialized: r.Uninitialized,
		})
		if errors.Is(err, domain.ErrAlreadyExists) {
			return false, nil
		}
		return err == nil, err
	}

	// Linking never marks a persona uninitialized, so a persona that was never
	// set up is created with its flag before its links are restored.
	if r.Uninitialized {
		_, err := s.personas.CreatePersonaByJSONWebKey(ctx, domain.PersonaKeys{
			PublicKey:     r.PublicKey,
			PrivateKey:    r.PrivateKey,
			LocalKey:      r.LocalKey,
			Nickname:      r.Nickname,
			Mnemonic:      r.Mnemonic,
			Uninitialized: true,
		})
		if err != nil && !errors.Is(err, domain.ErrAlreadyExists) {
			return false, err
		}
	}

	keys := domain.ProfilePersonaKeys{
		Nickname:   r.Nickname,
		PublicKey:  r.PublicKey,
		PrivateKey: r.PrivateKey,
		LocalKey:   r.LocalKey,
		Mnemonic:   r.Mnemonic,
	}
	for _, l := range links {
		if err := s.personas.CreateProfileWithPersona(ctx, l.Profile, l.Details, keys); err != nil {
			return false, err
		}
	}
	if r.HasLogout {
		if err := s.personas.LogoutPersona(ctx, r.Identifier); err != nil {
			return false, err
		}
	}
	return true, nil
}

// restoreProfiles writes profile nicknames and local keys, creating profiles
// that were never linked.
func (s *Service) restoreProfiles(ctx context.Context, profiles []domain.ProfileRecord) (int, error) {
	n := 0
	err := s.store.WithWriteAccess(ctx, func(ctx context.Context, tx domain.PersonaTx) error {
		n = 0
		for _, p := range profiles {
			_, ok, err := tx.QueryProfile(ctx, p.Identifier)
			if err != nil {
				return err
			}
			if ok {
				err = tx.UpdateProfile(ctx, p)
			} else {
				p.LinkedPersona = nil
				err = tx.CreateProfile(ctx, p)
			}
			if err != nil {
				return fmt.Errorf("restore profile %s: %w", p.Identifier, err)
			}
			n++
		}
		return nil
	})
	if err != nil {
		return 0, domain.StoreFailure("restore profiles", err)
	}
	return n, nil
}

// isSecurePassphrase enforces a basic strength policy.
func isSecurePassphrase(passphrase string) bool {
	var hasUpper, hasLower, hasDigit, hasSymbol bool
	if len(passphrase) < minPassphraseLength {
		return false
	}
	for _, r := range passphrase {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r), unicode.IsSymbol(r):
			hasSymbol = true
		}
	}
	return hasUpper && hasLower && hasDigit && hasSymbol
}

// Compile-time assertion that Service implements domain.BackupService.
var _ domain.BackupService = (*Service)(nil)
