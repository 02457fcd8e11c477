package persona

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"maskid/internal/crypto"
	"maskid/internal/domain"
)

// Service is the persona and profile domain logic over an injected store.
type Service struct {
	store   domain.PersonaStore
	avatars domain.AvatarCache

	logger *slog.Logger
	tracer trace.Tracer
	now    func() time.Time
	fanout int
}

// New returns a service over store. avatars may be nil, in which case
// profiles are projected without avatars.
func New(store domain.PersonaStore, avatars domain.AvatarCache, opts ...Option) *Service {
	s := &Service{store: store, avatars: avatars}
	defaults(s)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "persona."+op, trace.WithAttributes(attrs...))
}

// end finishes span and passes err through.
func end(span trace.Span, err error) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
	return err
}

func personaAttr(id domain.PersonaIdentifier) attribute.KeyValue {
	return attribute.String("persona", id.String())
}

func profileAttr(id domain.ProfileIdentifier) attribute.KeyValue {
	return attribute.String("profile", id.String())
}

// ---------- Queries ----------

// QueryProfile returns the profile view, or a synthetic one when id is unknown.
func (s *Service) QueryProfile(ctx context.Context, id domain.ProfileIdentifier) (_ domain.Profile, err error) {
	ctx, span := s.start(ctx, "QueryProfile", profileAttr(id))
	defer func() { err = end(span, err) }()

	rec, ok, err := s.store.QueryProfile(ctx, id)
	if err != nil {
		return domain.Profile{}, domain.StoreFailure("query profile", err)
	}
	if !ok {
		now := s.now()
		rec = domain.ProfileRecord{Identifier: id, CreatedAt: now, UpdatedAt: now}
	}
	return s.projectProfile(ctx, rec), nil
}

// QueryPersona returns the persona view, or a synthetic one when id is unknown.
func (s *Service) QueryPersona(ctx context.Context, id domain.PersonaIdentifier) (_ domain.Persona, err error) {
	ctx, span := s.start(ctx, "QueryPersona", personaAttr(id))
	defer func() { err = end(span, err) }()

	rec, ok, err := s.store.QueryPersona(ctx, id)
	if err != nil {
		return domain.Persona{}, domain.StoreFailure("query persona", err)
	}
	if !ok {
		now := s.now()
		rec = domain.PersonaRecord{Identifier: id, CreatedAt: now, UpdatedAt: now}
	}
	return projectPersona(rec), nil
}

// QueryProfilesWithQuery returns every profile matching q.
func (s *Service) QueryProfilesWithQuery(ctx context.Context, q domain.ProfileQuery) (_ []domain.Profile, err error) {
	ctx, span := s.start(ctx, "QueryProfilesWithQuery")
	defer func() { err = end(span, err) }()

	recs, err := s.store.QueryProfiles(ctx, q)
	if err != nil {
		return nil, domain.StoreFailure("query profiles", err)
	}
	return s.projectProfiles(ctx, recs), nil
}

// QueryProfilesPaged returns one page of profiles ordered by identifier.
func (s *Service) QueryProfilesPaged(ctx context.Context, page domain.ProfilePageRequest) (_ []domain.Profile, err error) {
	ctx, span := s.start(ctx, "QueryProfilesPaged", attribute.Int("count", page.Count))
	defer func() { err = end(span, err) }()

	recs, err := s.store.QueryProfilesPaged(ctx, page)
	if err != nil {
		return nil, domain.StoreFailure("query profiles paged", err)
	}
	return s.projectProfiles(ctx, recs), nil
}

// QueryPersonasWithQuery returns every persona matching q.
func (s *Service) QueryPersonasWithQuery(ctx context.Context, q domain.PersonaQuery) (_ []domain.Persona, err error) {
	ctx, span := s.start(ctx, "QueryPersonasWithQuery")
	defer func() { err = end(span, err) }()

	recs, err := s.store.QueryPersonas(ctx, q)
	if err != nil {
		return nil, domain.StoreFailure("query personas", err)
	}
	return projectPersonas(recs), nil
}

// QueryPersonaByProfile resolves a profile to its linked persona, or nil.
func (s *Service) QueryPersonaByProfile(ctx context.Context, id domain.ProfileIdentifier) (_ *domain.Persona, err error) {
	ctx, span := s.start(ctx, "QueryPersonaByProfile", profileAttr(id))
	defer func() { err = end(span, err) }()

	rec, ok, err := s.store.QueryPersonaByProfile(ctx, id)
	if err != nil {
		return nil, domain.StoreFailure("query persona by profile", err)
	}
	if !ok {
		return nil, nil
	}
	p := projectPersona(rec)
	return &p, nil
}

// QueryLocalKey returns the local key of a persona, or of a profile falling
// back to its linked persona's key. It returns nil when there is none.
func (s *Service) QueryLocalKey(ctx context.Context, id domain.Identifier) (_ *domain.AESKey, err error) {
	ctx, span := s.start(ctx, "QueryLocalKey", attribute.String("identifier", identifierString(id)))
	defer func() { err = end(span, err) }()
	return s.queryLocalKey(ctx, id)
}

func (s *Service) queryLocalKey(ctx context.Context, id domain.Identifier) (*domain.AESKey, error) {
	switch id := id.(type) {
	case domain.PersonaIdentifier:
		rec, ok, err := s.store.QueryPersona(ctx, id)
		if err != nil {
			return nil, domain.StoreFailure("query local key", err)
		}
		if !ok || rec.LocalKey == nil {
			return nil, nil
		}
		k := *rec.LocalKey
		return &k, nil
	case domain.ProfileIdentifier:
		rec, ok, err := s.store.QueryProfile(ctx, id)
		if err != nil {
			return nil, domain.StoreFailure("query local key", err)
		}
		if !ok {
			return nil, nil
		}
		if rec.LocalKey != nil {
			k := *rec.LocalKey
			return &k, nil
		}
		if rec.LinkedPersona == nil {
			return nil, nil
		}
		return s.queryLocalKey(ctx, *rec.LinkedPersona)
	default:
		return nil, errUnknownIdentifier("query local key", id)
	}
}

// QueryPublicKey returns the public key of a persona, or of a profile's linked persona.
func (s *Service) QueryPublicKey(ctx context.Context, id domain.Identifier) (_ *domain.ECPublicKey, err error) {
	ctx, span := s.start(ctx, "QueryPublicKey", attribute.String("identifier", identifierString(id)))
	defer func() { err = end(span, err) }()

	rec, ok, err := s.resolvePersona(ctx, "query public key", id)
	if err != nil || !ok {
		return nil, err
	}
	k := rec.PublicKey
	return &k, nil
}

// QueryPrivateKey returns the private key of a persona, or of a profile's linked persona.
func (s *Service) QueryPrivateKey(ctx context.Context, id domain.Identifier) (_ *domain.ECPrivateKey, err error) {
	ctx, span := s.start(ctx, "QueryPrivateKey", attribute.String("identifier", identifierString(id)))
	defer func() { err = end(span, err) }()

	rec, ok, err := s.resolvePersona(ctx, "query private key", id)
	if err != nil || !ok || rec.PrivateKey == nil {
		return nil, err
	}
	k := *rec.PrivateKey
	return &k, nil
}

// resolvePersona loads a persona directly or through a profile's link.
func (s *Service) resolvePersona(ctx context.Context, op string, id domain.Identifier) (domain.PersonaRecord, bool, error) {
	var (
		rec domain.PersonaRecord
		ok  bool
		err error
	)
	switch id := id.(type) {
	case domain.PersonaIdentifier:
		rec, ok, err = s.store.QueryPersona(ctx, id)
	case domain.ProfileIdentifier:
		rec, ok, err = s.store.QueryPersonaByProfile(ctx, id)
	default:
		return domain.PersonaRecord{}, false, errUnknownIdentifier(op, id)
	}
	if err != nil {
		return domain.PersonaRecord{}, false, domain.StoreFailure(op, err)
	}
	return rec, ok, nil
}

// ---------- Mutations ----------

// CreatePersonaByMnemonic generates a fresh mnemonic-backed persona.
func (s *Service) CreatePersonaByMnemonic(ctx context.Context, nickname, password string) (_ domain.PersonaIdentifier, err error) {
	ctx, span := s.start(ctx, "CreatePersonaByMnemonic")
	defer func() { err = end(span, err) }()

	kp, mnemonic, err := crypto.GenerateKeyPair(password)
	if err != nil {
		return domain.PersonaIdentifier{}, err
	}
	return s.createPersona(ctx, mnemonicKeys(kp, mnemonic, nickname))
}

// CreatePersonaByMnemonicV2 recovers a persona from words. A taken nickname is
// reported before an invalid mnemonic.
func (s *Service) CreatePersonaByMnemonicV2(ctx context.Context, words, nickname, password string) (_ domain.PersonaIdentifier, err error) {
	ctx, span := s.start(ctx, "CreatePersonaByMnemonicV2")
	defer func() { err = end(span, err) }()

	// Derivation is slow, so it runs before the write scope; its error is
	// reported only after the nickname check.
	kp, mnemonic, recoverErr := crypto.RecoverKeyPair(words, password)

	var id domain.PersonaIdentifier
	err = s.store.WithWriteAccess(ctx, func(ctx context.Context, tx domain.PersonaTx) error {
		if err := checkNickname(ctx, tx, nickname, nil); err != nil {
			return err
		}
		if recoverErr != nil {
			return recoverErr
		}
		rec, err := s.newPersonaRecord(mnemonicKeys(kp, mnemonic, nickname))
		if err != nil {
			return err
		}
		id = rec.Identifier
		return tx.CreatePersona(ctx, rec)
	})
	if err != nil {
		return domain.PersonaIdentifier{}, domain.StoreFailure("create persona", err)
	}
	s.logger.InfoContext(ctx, "persona recovered", slog.String("persona", id.String()))
	return id, nil
}

// CreatePersonaByJSONWebKey stores a persona built from existing key material.
func (s *Service) CreatePersonaByJSONWebKey(ctx context.Context, keys domain.PersonaKeys) (_ domain.PersonaIdentifier, err error) {
	ctx, span := s.start(ctx, "CreatePersonaByJSONWebKey")
	defer func() { err = end(span, err) }()
	return s.createPersona(ctx, keys)
}

func (s *Service) createPersona(ctx context.Context, keys domain.PersonaKeys) (domain.PersonaIdentifier, error) {
	rec, err := s.newPersonaRecord(keys)
	if err != nil {
		return domain.PersonaIdentifier{}, err
	}
	err = s.store.WithWriteAccess(ctx, func(ctx context.Context, tx domain.PersonaTx) error {
		if err := checkNickname(ctx, tx, rec.Nickname, nil); err != nil {
			return err
		}
		return tx.CreatePersona(ctx, rec)
	})
	if err != nil {
		return domain.PersonaIdentifier{}, domain.StoreFailure("create persona", err)
	}
	s.logger.InfoContext(ctx, "persona created",
		slog.String("persona", rec.Identifier.String()),
		slog.String("fingerprint", crypto.ShortFingerprint(rec.Identifier)),
		slog.Bool("private", rec.PrivateKey != nil),
	)
	return rec.Identifier, nil
}

// CreateProfileWithPersona creates or merges the persona owning keys and links
// profile to it in the same write scope. A nickname already used by another
// persona fails with domain.ErrDuplicateNickname.
func (s *Service) CreateProfileWithPersona(
	ctx context.Context,
	profile domain.ProfileIdentifier,
	details domain.LinkedProfileDetails,
	keys domain.ProfilePersonaKeys,
) (err error) {
	ctx, span := s.start(ctx, "CreateProfileWithPersona", profileAttr(profile))
	defer func() { err = end(span, err) }()

	if profile.IsZero() {
		return domain.E(domain.KindInvalidArgument, "create profile with persona", "profile identifier is required")
	}
	if details.ConnectionConfirmState != "" && !details.ConnectionConfirmState.Valid() {
		return domain.E(domain.KindInvalidArgument, "create profile with persona",
			"unknown connection state "+string(details.ConnectionConfirmState))
	}
	rec, err := s.newPersonaRecord(domain.PersonaKeys{
		PublicKey:  keys.PublicKey,
		PrivateKey: keys.PrivateKey,
		LocalKey:   keys.LocalKey,
		Nickname:   keys.Nickname,
		Mnemonic:   keys.Mnemonic,
	})
	if err != nil {
		return err
	}

	err = s.store.WithWriteAccess(ctx, func(ctx context.Context, tx domain.PersonaTx) error {
		if err := checkNickname(ctx, tx, rec.Nickname, &rec.Identifier); err != nil {
			return err
		}
		if err := tx.CreateOrUpdatePersona(ctx, rec, domain.MergeIgnore); err != nil {
			return err
		}
		return tx.AttachProfile(ctx, profile, rec.Identifier, details)
	})
	if err != nil {
		return domain.StoreFailure("create profile with persona", err)
	}
	s.logger.InfoContext(ctx, "profile linked",
		slog.String("profile", profile.String()),
		slog.String("persona", rec.Identifier.String()),
	)
	return nil
}

// DetachProfile unlinks profile from its persona on both sides.
func (s *Service) DetachProfile(ctx context.Context, profile domain.ProfileIdentifier) (err error) {
	ctx, span := s.start(ctx, "DetachProfile", profileAttr(profile))
	defer func() { err = end(span, err) }()

	err = s.store.WithWriteAccess(ctx, func(ctx context.Context, tx domain.PersonaTx) error {
		return tx.DetachProfile(ctx, profile)
	})
	if err != nil {
		return domain.StoreFailure("detach profile", err)
	}
	s.logger.InfoContext(ctx, "profile detached", slog.String("profile", profile.String()))
	return nil
}

// DeletePersona detaches every linked profile and deletes the persona per
// mode. A refused safe delete rolls back the detaches and returns
// domain.ErrUnsafeDelete. Deleting an unknown persona is a no-op.
func (s *Service) DeletePersona(ctx context.Context, id domain.PersonaIdentifier, mode domain.DeleteMode) (err error) {
	ctx, span := s.start(ctx, "DeletePersona", personaAttr(id), attribute.String("mode", string(mode)))
	defer func() { err = end(span, err) }()

	if mode != domain.DeleteEvenWithPrivate && mode != domain.SafeDelete {
		return domain.E(domain.KindInvalidArgument, "delete persona", "unknown delete mode "+string(mode))
	}

	deleted := false
	err = s.store.WithWriteAccess(ctx, func(ctx context.Context, tx domain.PersonaTx) error {
		rec, ok, err := tx.QueryPersona(ctx, id)
		if err != nil || !ok {
			return err
		}
		for _, l := range rec.LinkedProfiles.Entries() {
			if err := tx.DetachProfile(ctx, l.Profile); err != nil {
				return err
			}
		}
		if mode == domain.DeleteEvenWithPrivate {
			deleted = true
			return tx.DeletePersona(ctx, id)
		}
		removed, err := tx.SafeDeletePersona(ctx, id)
		if err != nil {
			return err
		}
		if !removed {
			return domain.E(domain.KindUnsafeDelete, "delete persona",
				"persona "+id.String()+" holds key material that would be lost")
		}
		deleted = true
		return nil
	})
	if err != nil {
		return domain.StoreFailure("delete persona", err)
	}
	if deleted {
		s.logger.InfoContext(ctx, "persona deleted", slog.String("persona", id.String()), slog.String("mode", string(mode)))
	}
	return nil
}

// LoginPersona clears the logout flag.
func (s *Service) LoginPersona(ctx context.Context, id domain.PersonaIdentifier) (err error) {
	ctx, span := s.start(ctx, "LoginPersona", personaAttr(id))
	defer func() { err = end(span, err) }()
	return s.setLogout(ctx, id, false)
}

// LogoutPersona sets the logout flag. Linked profiles are kept.
func (s *Service) LogoutPersona(ctx context.Context, id domain.PersonaIdentifier) (err error) {
	ctx, span := s.start(ctx, "LogoutPersona", personaAttr(id))
	defer func() { err = end(span, err) }()
	return s.setLogout(ctx, id, true)
}

func (s *Service) setLogout(ctx context.Context, id domain.PersonaIdentifier, logout bool) error {
	err := s.store.WithWriteAccess(ctx, func(ctx context.Context, tx domain.PersonaTx) error {
		return tx.UpdatePersona(ctx, domain.PersonaPatch{Identifier: id, HasLogout: &logout}, domain.MergeIgnore)
	})
	if err != nil {
		return domain.StoreFailure("set logout", err)
	}
	s.logger.InfoContext(ctx, "persona logout changed", slog.String("persona", id.String()), slog.Bool("logout", logout))
	return nil
}

// RenamePersona sets the nickname of id. The uniqueness check and the update
// share one write scope.
func (s *Service) RenamePersona(ctx context.Context, id domain.PersonaIdentifier, nickname string) (err error) {
	ctx, span := s.start(ctx, "RenamePersona", personaAttr(id))
	defer func() { err = end(span, err) }()

	nickname = strings.TrimSpace(nickname)
	err = s.store.WithWriteAccess(ctx, func(ctx context.Context, tx domain.PersonaTx) error {
		if err := checkNickname(ctx, tx, nickname, &id); err != nil {
			return err
		}
		return tx.UpdatePersona(ctx, domain.PersonaPatch{Identifier: id, Nickname: &nickname}, domain.MergeIgnore)
	})
	if err != nil {
		return domain.StoreFailure("rename persona", err)
	}
	s.logger.InfoContext(ctx, "persona renamed", slog.String("persona", id.String()))
	return nil
}

// SetupPersona marks a persona initialized once it links at least one
// profile. It is a no-op for an initialized persona.
func (s *Service) SetupPersona(ctx context.Context, id domain.PersonaIdentifier) (err error) {
	ctx, span := s.start(ctx, "SetupPersona", personaAttr(id))
	defer func() { err = end(span, err) }()

	changed := false
	err = s.store.WithWriteAccess(ctx, func(ctx context.Context, tx domain.PersonaTx) error {
		rec, ok, err := tx.QueryPersona(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			return domain.E(domain.KindNotFound, "setup persona", "persona "+id.String()+" not found")
		}
		if rec.LinkedProfiles.Len() == 0 {
			return domain.E(domain.KindNoLinkedProfile, "setup persona", "persona should link at least one profile")
		}
		if !rec.Uninitialized {
			return nil
		}
		initialized := false
		changed = true
		return tx.UpdatePersona(ctx, domain.PersonaPatch{Identifier: id, Uninitialized: &initialized}, domain.MergeIgnore)
	})
	if err != nil {
		return domain.StoreFailure("setup persona", err)
	}
	if changed {
		s.logger.InfoContext(ctx, "persona initialized", slog.String("persona", id.String()))
	}
	return nil
}

// SetProfileAvatar caches an avatar data URL for a profile.
func (s *Service) SetProfileAvatar(ctx context.Context, id domain.ProfileIdentifier, dataURL string) (err error) {
	ctx, span := s.start(ctx, "SetProfileAvatar", profileAttr(id))
	defer func() { err = end(span, err) }()

	if s.avatars == nil {
		return domain.E(domain.KindInvalidArgument, "set profile avatar", "no avatar cache configured")
	}
	if !strings.HasPrefix(dataURL, "data:") {
		return domain.E(domain.KindInvalidArgument, "set profile avatar", "avatar must be a data URL")
	}
	if err := s.avatars.StoreAvatar(ctx, id, dataURL); err != nil {
		return domain.StoreFailure("set profile avatar", err)
	}
	return nil
}

// ---------- Helpers ----------

// newPersonaRecord validates keys and builds a fresh record from them.
func (s *Service) newPersonaRecord(keys domain.PersonaKeys) (domain.PersonaRecord, error) {
	id, err := crypto.PersonaIdentifierFromPublicKey(keys.PublicKey)
	if err != nil {
		return domain.PersonaRecord{}, err
	}
	if keys.PrivateKey != nil && !crypto.MatchesPrivateKey(keys.PublicKey, *keys.PrivateKey) {
		return domain.PersonaRecord{}, domain.E(domain.KindInvalidArgument, "create persona", "private key does not match public key")
	}
	now := s.now()
	rec := domain.PersonaRecord{
		Identifier:    id,
		CreatedAt:     now,
		UpdatedAt:     now,
		PublicKey:     keys.PublicKey,
		Nickname:      strings.TrimSpace(keys.Nickname),
		Uninitialized: keys.Uninitialized,
	}
	if keys.PrivateKey != nil {
		k := *keys.PrivateKey
		rec.PrivateKey = &k
	}
	if keys.LocalKey != nil {
		k := *keys.LocalKey
		rec.LocalKey = &k
	}
	if keys.Mnemonic != nil {
		m := *keys.Mnemonic
		rec.Mnemonic = &m
	}
	return rec, nil
}

func mnemonicKeys(kp crypto.KeyPair, mnemonic domain.MnemonicRecord, nickname string) domain.PersonaKeys {
	local := crypto.DeriveLocalKey(kp.PublicKey, mnemonic.Words)
	priv := kp.PrivateKey
	return domain.PersonaKeys{
		PublicKey:  kp.PublicKey,
		PrivateKey: &priv,
		LocalKey:   &local,
		Nickname:   nickname,
		Mnemonic:   &mnemonic,
	}
}

// checkNickname fails with DuplicateNickname when a persona other than self
// already uses nickname. An empty nickname is never a duplicate.
func checkNickname(ctx context.Context, tx domain.PersonaReader, nickname string, self *domain.PersonaIdentifier) error {
	nickname = strings.TrimSpace(nickname)
	if nickname == "" {
		return nil
	}
	matches, err := tx.QueryPersonas(ctx, domain.PersonaQuery{NicknameEquals: nickname})
	if err != nil {
		return err
	}
	for _, m := range matches {
		if self == nil || m.Identifier != *self {
			return domain.E(domain.KindDuplicateNickname, "check nickname", "nickname "+nickname+" is already used")
		}
	}
	return nil
}

func identifierString(id domain.Identifier) string {
	if id == nil {
		return ""
	}
	return id.String()
}

func errUnknownIdentifier(op string, id domain.Identifier) error {
	return domain.E(domain.KindInvalidArgument, op, "unsupported identifier "+identifierString(id))
}

// Compile-time assertion that Service implements domain.PersonaService.
var _ domain.PersonaService = (*Service)(nil)
