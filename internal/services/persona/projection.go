package persona

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"maskid/internal/domain"
)

// projectPersona strips key material from r.
func projectPersona(r domain.PersonaRecord) domain.Persona {
	var mnemonic *domain.MnemonicRecord
	if r.Mnemonic != nil {
		m := *r.Mnemonic
		mnemonic = &m
	}
	return domain.Persona{
		Identifier:     r.Identifier,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
		Nickname:       r.Nickname,
		Mnemonic:       mnemonic,
		LinkedProfiles: r.LinkedProfiles.Clone(),
		HasLogout:      r.HasLogout,
		Uninitialized:  r.Uninitialized,
		HasPrivateKey:  r.PrivateKey != nil,
		Fingerprint:    r.Identifier.Fingerprint(),
	}
}

// projectProfile strips the local key from r and resolves its linked persona
// and avatar concurrently. Lookup failures are logged and become absence.
func (s *Service) projectProfile(ctx context.Context, r domain.ProfileRecord) domain.Profile {
	out := domain.Profile{
		Identifier: r.Identifier,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
		Nickname:   r.Nickname,
	}

	var (
		g       errgroup.Group
		linked  *domain.Persona
		avatar  string
		profile = slog.String("profile", r.Identifier.String())
	)
	if r.LinkedPersona != nil {
		id := *r.LinkedPersona
		g.Go(func() error {
			rec, ok, err := s.store.QueryPersona(ctx, id)
			if err != nil {
				s.logger.WarnContext(ctx, "linked persona lookup failed", profile, slog.Any("err", err))
				return nil
			}
			if ok {
				p := projectPersona(rec)
				linked = &p
			}
			return nil
		})
	}
	if s.avatars != nil {
		g.Go(func() error {
			url, ok, err := s.avatars.QueryAvatar(ctx, r.Identifier)
			if err != nil {
				s.logger.WarnContext(ctx, "avatar lookup failed", profile, slog.Any("err", err))
				return nil
			}
			if ok {
				avatar = url
			}
			return nil
		})
	}
	_ = g.Wait()

	out.LinkedPersona = linked
	out.Avatar = avatar
	return out
}

// projectProfiles projects recs in order with at most s.fanout in flight.
func (s *Service) projectProfiles(ctx context.Context, recs []domain.ProfileRecord) []domain.Profile {
	out := make([]domain.Profile, len(recs))
	var g errgroup.Group
	g.SetLimit(s.fanout)
	for i, r := range recs {
		g.Go(func() error {
			out[i] = s.projectProfile(ctx, r)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func projectPersonas(recs []domain.PersonaRecord) []domain.Persona {
	out := make([]domain.Persona, len(recs))
	for i, r := range recs {
		out[i] = projectPersona(r)
	}
	return out
}
