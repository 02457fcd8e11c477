package persona_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"maskid/internal/avatar"
	"maskid/internal/crypto"
	"maskid/internal/domain"
	"maskid/internal/services/persona"
	"maskid/internal/store"
)

const testWords = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

// unsafeStore wraps a store whose safe-delete primitive always refuses.
type unsafeStore struct {
	*store.MemoryStore
}

type unsafeTx struct {
	domain.PersonaTx
}

func (unsafeTx) SafeDeletePersona(context.Context, domain.PersonaIdentifier) (bool, error) {
	return false, nil
}

func (s unsafeStore) WithWriteAccess(ctx context.Context, fn func(ctx context.Context, tx domain.PersonaTx) error) error {
	return s.MemoryStore.WithWriteAccess(ctx, func(ctx context.Context, tx domain.PersonaTx) error {
		return fn(ctx, unsafeTx{tx})
	})
}

// brokenAvatars fails every lookup.
type brokenAvatars struct{}

func (brokenAvatars) QueryAvatar(context.Context, domain.ProfileIdentifier) (string, bool, error) {
	return "", false, errors.New("cache offline")
}

func (brokenAvatars) StoreAvatar(context.Context, domain.ProfileIdentifier, string) error {
	return errors.New("cache offline")
}

func newService(t *testing.T, avatars domain.AvatarCache) (*persona.Service, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore(store.WithClock(clock))
	return persona.New(st, avatars, persona.WithClock(clock)), st
}

// keyPair recovers a deterministic key pair; distinct passwords give distinct keys.
func keyPair(t *testing.T, password string) crypto.KeyPair {
	t.Helper()
	kp, _, err := crypto.RecoverKeyPair(testWords, password)
	if err != nil {
		t.Fatalf("RecoverKeyPair: %v", err)
	}
	return kp
}

func createPersona(t *testing.T, s *persona.Service, password, nickname string, withPrivate bool) domain.PersonaIdentifier {
	t.Helper()
	kp := keyPair(t, password)
	keys := domain.PersonaKeys{PublicKey: kp.PublicKey, Nickname: nickname}
	if withPrivate {
		keys.PrivateKey = &kp.PrivateKey
	}
	id, err := s.CreatePersonaByJSONWebKey(context.Background(), keys)
	if err != nil {
		t.Fatalf("CreatePersonaByJSONWebKey: %v", err)
	}
	return id
}

func TestCreatePersonaByJSONWebKey_RoundTrip(t *testing.T) {
	s, _ := newService(t, nil)
	ctx := context.Background()

	for _, withPrivate := range []bool{true, false} {
		password := "private"
		if !withPrivate {
			password = "public"
		}
		kp := keyPair(t, password)
		id := createPersona(t, s, password, "", withPrivate)

		want, err := crypto.PersonaIdentifierFromPublicKey(kp.PublicKey)
		if err != nil {
			t.Fatal(err)
		}
		if id != want {
			t.Fatalf("identifier = %s, want %s", id, want)
		}
		p, err := s.QueryPersona(ctx, id)
		if err != nil {
			t.Fatalf("QueryPersona: %v", err)
		}
		if p.Fingerprint != domain.Fingerprint(want.CompressedPoint) {
			t.Fatalf("fingerprint = %s, want %s", p.Fingerprint, want.CompressedPoint)
		}
		if p.HasPrivateKey != withPrivate {
			t.Fatalf("HasPrivateKey = %v, want %v", p.HasPrivateKey, withPrivate)
		}
		if !p.CreatedAt.Equal(fixedNow) {
			t.Fatalf("CreatedAt = %v", p.CreatedAt)
		}
	}
}

func TestCreatePersonaByJSONWebKey_Rejects(t *testing.T) {
	s, _ := newService(t, nil)
	ctx := context.Background()
	createPersona(t, s, "a", "", true)

	kp := keyPair(t, "a")
	if _, err := s.CreatePersonaByJSONWebKey(ctx, domain.PersonaKeys{PublicKey: kp.PublicKey}); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("duplicate: want ErrAlreadyExists, got %v", err)
	}

	bad := kp.PublicKey
	bad.Y[31] ^= 0x01
	if _, err := s.CreatePersonaByJSONWebKey(ctx, domain.PersonaKeys{PublicKey: bad}); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("off-curve key: want ErrInvalidArgument, got %v", err)
	}

	other := keyPair(t, "b")
	_, err := s.CreatePersonaByJSONWebKey(ctx, domain.PersonaKeys{PublicKey: other.PublicKey, PrivateKey: &kp.PrivateKey})
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("mismatched private key: want ErrInvalidArgument, got %v", err)
	}
}

func TestCreatePersonaByMnemonic(t *testing.T) {
	s, _ := newService(t, nil)
	ctx := context.Background()

	id, err := s.CreatePersonaByMnemonic(ctx, "alice", "pw")
	if err != nil {
		t.Fatalf("CreatePersonaByMnemonic: %v", err)
	}
	p, _ := s.QueryPersona(ctx, id)
	if p.Nickname != "alice" || !p.HasPrivateKey || p.Uninitialized {
		t.Fatalf("unexpected persona: %+v", p)
	}
	if p.Mnemonic == nil || !p.Mnemonic.Parameters.WithPassword {
		t.Fatalf("mnemonic not recorded: %+v", p.Mnemonic)
	}
	local, err := s.QueryLocalKey(ctx, id)
	if err != nil || local == nil {
		t.Fatalf("QueryLocalKey: %v, %v", local, err)
	}

	// The recorded words recover the same identifier.
	kp, _, err := crypto.RecoverKeyPair(p.Mnemonic.Words, "pw")
	if err != nil {
		t.Fatal(err)
	}
	if again, _ := crypto.PersonaIdentifierFromPublicKey(kp.PublicKey); again != id {
		t.Fatalf("recovered %s, want %s", again, id)
	}
}

func TestCreatePersonaByMnemonicV2(t *testing.T) {
	s, _ := newService(t, nil)
	ctx := context.Background()

	id, err := s.CreatePersonaByMnemonicV2(ctx, testWords, "Alice", "")
	if err != nil {
		t.Fatalf("CreatePersonaByMnemonicV2: %v", err)
	}
	kp := keyPair(t, "")
	if want, _ := crypto.PersonaIdentifierFromPublicKey(kp.PublicKey); id != want {
		t.Fatalf("identifier = %s, want %s", id, want)
	}

	// Nickname is checked before the mnemonic.
	if _, err := s.CreatePersonaByMnemonicV2(ctx, "not a mnemonic", "alice", ""); !errors.Is(err, domain.ErrDuplicateNickname) {
		t.Fatalf("want ErrDuplicateNickname, got %v", err)
	}
	if _, err := s.CreatePersonaByMnemonicV2(ctx, "not a mnemonic", "Bob", ""); !errors.Is(err, domain.ErrInvalidMnemonic) {
		t.Fatalf("want ErrInvalidMnemonic, got %v", err)
	}
	if _, err := s.CreatePersonaByMnemonicV2(ctx, testWords, "Carol", ""); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("same words twice: want ErrAlreadyExists, got %v", err)
	}
}

func TestCreateProfileWithPersona_Links(t *testing.T) {
	s, _ := newService(t, nil)
	ctx := context.Background()
	kp := keyPair(t, "a")
	prof := domain.NewProfileIdentifier("twitter.com", "alice")

	err := s.CreateProfileWithPersona(ctx, prof,
		domain.LinkedProfileDetails{ConnectionConfirmState: domain.ConnectionConfirmed},
		domain.ProfilePersonaKeys{PublicKey: kp.PublicKey, PrivateKey: &kp.PrivateKey, Nickname: "alice"},
	)
	if err != nil {
		t.Fatalf("CreateProfileWithPersona: %v", err)
	}

	want, _ := crypto.PersonaIdentifierFromPublicKey(kp.PublicKey)
	p, err := s.QueryPersonaByProfile(ctx, prof)
	if err != nil || p == nil {
		t.Fatalf("QueryPersonaByProfile: %v, %v", p, err)
	}
	if p.Identifier != want {
		t.Fatalf("linked persona = %s, want %s", p.Identifier, want)
	}
	if !p.LinkedProfiles.Has(prof) {
		t.Fatal("persona does not list the profile")
	}
	view, _ := s.QueryProfile(ctx, prof)
	if view.LinkedPersona == nil || view.LinkedPersona.Identifier != want {
		t.Fatalf("profile view linked persona = %+v", view.LinkedPersona)
	}
}

func TestCreatePaths_RejectDuplicateNickname(t *testing.T) {
	s, _ := newService(t, nil)
	ctx := context.Background()
	alice := createPersona(t, s, "a", "Alice", true)

	other := keyPair(t, "b")
	if _, err := s.CreatePersonaByJSONWebKey(ctx, domain.PersonaKeys{PublicKey: other.PublicKey, Nickname: "alice"}); !errors.Is(err, domain.ErrDuplicateNickname) {
		t.Fatalf("json web key: want ErrDuplicateNickname, got %v", err)
	}
	if _, err := s.CreatePersonaByMnemonic(ctx, "Alice", "pw"); !errors.Is(err, domain.ErrDuplicateNickname) {
		t.Fatalf("mnemonic: want ErrDuplicateNickname, got %v", err)
	}

	prof := domain.NewProfileIdentifier("net", "bob")
	err := s.CreateProfileWithPersona(ctx, prof, domain.LinkedProfileDetails{},
		domain.ProfilePersonaKeys{PublicKey: other.PublicKey, Nickname: " Alice "})
	if !errors.Is(err, domain.ErrDuplicateNickname) {
		t.Fatalf("profile with persona: want ErrDuplicateNickname, got %v", err)
	}
	if p, _ := s.QueryPersonaByProfile(ctx, prof); p != nil {
		t.Fatalf("rejected link was committed: %+v", p)
	}

	// The owner of a nickname may repeat it when linking.
	kp := keyPair(t, "a")
	if err := s.CreateProfileWithPersona(ctx, domain.NewProfileIdentifier("net", "alice"), domain.LinkedProfileDetails{},
		domain.ProfilePersonaKeys{PublicKey: kp.PublicKey, Nickname: "Alice"}); err != nil {
		t.Fatalf("owner relink: %v", err)
	}

	same, err := s.QueryPersonasWithQuery(ctx, domain.PersonaQuery{NicknameEquals: "Alice"})
	if err != nil {
		t.Fatal(err)
	}
	if len(same) != 1 || same[0].Identifier != alice {
		t.Fatalf("personas named Alice = %+v", same)
	}
}

func TestCreateProfileWithPersona_MergesExisting(t *testing.T) {
	s, _ := newService(t, nil)
	ctx := context.Background()
	id := createPersona(t, s, "a", "alice", true)
	kp := keyPair(t, "a")

	err := s.CreateProfileWithPersona(ctx, domain.NewProfileIdentifier("net", "one"), domain.LinkedProfileDetails{},
		domain.ProfilePersonaKeys{PublicKey: kp.PublicKey})
	if err != nil {
		t.Fatalf("first link: %v", err)
	}
	err = s.CreateProfileWithPersona(ctx, domain.NewProfileIdentifier("net", "two"), domain.LinkedProfileDetails{},
		domain.ProfilePersonaKeys{PublicKey: kp.PublicKey})
	if err != nil {
		t.Fatalf("second link: %v", err)
	}

	p, _ := s.QueryPersona(ctx, id)
	if !p.HasPrivateKey || p.Nickname != "alice" {
		t.Fatalf("merge dropped fields: %+v", p)
	}
	if p.LinkedProfiles.Len() != 2 {
		t.Fatalf("linked profiles = %d, want 2", p.LinkedProfiles.Len())
	}
}

func TestDeletePersona_SafeDeleteRefused(t *testing.T) {
	mem := store.NewMemoryStore(store.WithClock(clock))
	s := persona.New(unsafeStore{mem}, nil, persona.WithClock(clock))
	ctx := context.Background()
	kp := keyPair(t, "a")
	prof := domain.NewProfileIdentifier("net", "alice")
	if err := s.CreateProfileWithPersona(ctx, prof, domain.LinkedProfileDetails{}, domain.ProfilePersonaKeys{PublicKey: kp.PublicKey}); err != nil {
		t.Fatal(err)
	}
	id, _ := crypto.PersonaIdentifierFromPublicKey(kp.PublicKey)

	if err := s.DeletePersona(ctx, id, domain.SafeDelete); !errors.Is(err, domain.ErrUnsafeDelete) {
		t.Fatalf("want ErrUnsafeDelete, got %v", err)
	}
	rec, ok, _ := mem.QueryPersona(ctx, id)
	if !ok {
		t.Fatal("persona removed despite unsafe flag")
	}
	if !rec.LinkedProfiles.Has(prof) {
		t.Fatal("detach was not rolled back")
	}
}

func TestDeletePersona_SafeDeleteKeepsPrivateKey(t *testing.T) {
	s, st := newService(t, nil)
	ctx := context.Background()
	owned := createPersona(t, s, "a", "", true)
	contact := createPersona(t, s, "b", "", false)

	if err := s.DeletePersona(ctx, owned, domain.SafeDelete); !errors.Is(err, domain.ErrUnsafeDelete) {
		t.Fatalf("want ErrUnsafeDelete, got %v", err)
	}
	if _, ok, _ := st.QueryPersona(ctx, owned); !ok {
		t.Fatal("persona with private key was deleted")
	}
	if err := s.DeletePersona(ctx, contact, domain.SafeDelete); err != nil {
		t.Fatalf("safe delete of public-only persona: %v", err)
	}
	if _, ok, _ := st.QueryPersona(ctx, contact); ok {
		t.Fatal("public-only persona still present")
	}
}

func TestDeletePersona_EvenWithPrivate(t *testing.T) {
	s, st := newService(t, nil)
	ctx := context.Background()
	kp := keyPair(t, "a")
	prof := domain.NewProfileIdentifier("net", "alice")
	if err := s.CreateProfileWithPersona(ctx, prof, domain.LinkedProfileDetails{},
		domain.ProfilePersonaKeys{PublicKey: kp.PublicKey, PrivateKey: &kp.PrivateKey}); err != nil {
		t.Fatal(err)
	}
	id, _ := crypto.PersonaIdentifierFromPublicKey(kp.PublicKey)

	if err := s.DeletePersona(ctx, id, domain.DeleteEvenWithPrivate); err != nil {
		t.Fatalf("DeletePersona: %v", err)
	}
	if _, ok, _ := st.QueryPersona(ctx, id); ok {
		t.Fatal("persona still present")
	}
	view, err := s.QueryProfile(ctx, prof)
	if err != nil {
		t.Fatalf("QueryProfile: %v", err)
	}
	if view.LinkedPersona != nil {
		t.Fatal("profile still linked to deleted persona")
	}

	if err := s.DeletePersona(ctx, id, domain.DeleteEvenWithPrivate); err != nil {
		t.Fatalf("deleting a missing persona: %v", err)
	}
	if err := s.DeletePersona(ctx, id, "bogus"); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("unknown mode: want ErrInvalidArgument, got %v", err)
	}
}

func TestSetupPersona(t *testing.T) {
	s, st := newService(t, nil)
	ctx := context.Background()
	kp := keyPair(t, "a")
	id, err := s.CreatePersonaByJSONWebKey(ctx, domain.PersonaKeys{PublicKey: kp.PublicKey, PrivateKey: &kp.PrivateKey, Uninitialized: true})
	if err != nil {
		t.Fatal(err)
	}

	if err := s.SetupPersona(ctx, missingPersona(t)); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("unknown persona: want ErrNotFound, got %v", err)
	}
	if err := s.SetupPersona(ctx, id); !errors.Is(err, domain.ErrNoLinkedProfile) {
		t.Fatalf("no profiles: want ErrNoLinkedProfile, got %v", err)
	}

	if err := s.CreateProfileWithPersona(ctx, domain.NewProfileIdentifier("net", "alice"), domain.LinkedProfileDetails{},
		domain.ProfilePersonaKeys{PublicKey: kp.PublicKey}); err != nil {
		t.Fatal(err)
	}
	if err := s.SetupPersona(ctx, id); err != nil {
		t.Fatalf("SetupPersona: %v", err)
	}
	p, _ := s.QueryPersona(ctx, id)
	if p.Uninitialized {
		t.Fatal("persona still uninitialized")
	}

	before, _, _ := st.QueryPersona(ctx, id)
	for i := 0; i < 2; i++ {
		if err := s.SetupPersona(ctx, id); err != nil {
			t.Fatalf("repeat SetupPersona: %v", err)
		}
	}
	after, _, _ := st.QueryPersona(ctx, id)
	if !after.UpdatedAt.Equal(before.UpdatedAt) || after.Uninitialized != before.Uninitialized {
		t.Fatal("repeat setup changed state")
	}
}

// missingPersona returns an identifier no test persona uses.
func missingPersona(t *testing.T) domain.PersonaIdentifier {
	t.Helper()
	kp := keyPair(t, "missing")
	id, err := crypto.PersonaIdentifierFromPublicKey(kp.PublicKey)
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func TestRenamePersona(t *testing.T) {
	s, _ := newService(t, nil)
	ctx := context.Background()
	alice := createPersona(t, s, "a", "Alice", true)
	other := createPersona(t, s, "b", "", true)

	if err := s.RenamePersona(ctx, other, "Alice"); !errors.Is(err, domain.ErrDuplicateNickname) {
		t.Fatalf("want ErrDuplicateNickname, got %v", err)
	}
	if err := s.RenamePersona(ctx, other, "alice"); !errors.Is(err, domain.ErrDuplicateNickname) {
		t.Fatalf("case-insensitive: want ErrDuplicateNickname, got %v", err)
	}
	if err := s.RenamePersona(ctx, alice, "Alice"); err != nil {
		t.Fatalf("renaming to own nickname: %v", err)
	}
	if err := s.RenamePersona(ctx, other, "Bob"); err != nil {
		t.Fatalf("RenamePersona: %v", err)
	}
	if p, _ := s.QueryPersona(ctx, other); p.Nickname != "Bob" {
		t.Fatalf("Nickname = %q", p.Nickname)
	}
	if err := s.RenamePersona(ctx, missingPersona(t), "Zed"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("unknown persona: want ErrNotFound, got %v", err)
	}
}

func TestLoginLogoutKeepsLinks(t *testing.T) {
	s, _ := newService(t, nil)
	ctx := context.Background()
	kp := keyPair(t, "a")
	prof := domain.NewProfileIdentifier("net", "alice")
	if err := s.CreateProfileWithPersona(ctx, prof, domain.LinkedProfileDetails{},
		domain.ProfilePersonaKeys{PublicKey: kp.PublicKey, PrivateKey: &kp.PrivateKey}); err != nil {
		t.Fatal(err)
	}
	id, _ := crypto.PersonaIdentifierFromPublicKey(kp.PublicKey)

	if err := s.LogoutPersona(ctx, id); err != nil {
		t.Fatalf("LogoutPersona: %v", err)
	}
	p, _ := s.QueryPersona(ctx, id)
	if !p.HasLogout || !p.LinkedProfiles.Has(prof) || !p.HasPrivateKey {
		t.Fatalf("after logout: %+v", p)
	}
	if err := s.LoginPersona(ctx, id); err != nil {
		t.Fatalf("LoginPersona: %v", err)
	}
	if p, _ := s.QueryPersona(ctx, id); p.HasLogout {
		t.Fatal("still logged out")
	}
	if err := s.LogoutPersona(ctx, missingPersona(t)); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("unknown persona: want ErrNotFound, got %v", err)
	}
}

func TestQueryUnknownReturnsSyntheticViews(t *testing.T) {
	s, _ := newService(t, nil)
	ctx := context.Background()

	prof := domain.NewProfileIdentifier("net", "ghost")
	view, err := s.QueryProfile(ctx, prof)
	if err != nil {
		t.Fatalf("QueryProfile: %v", err)
	}
	if view.Identifier != prof || !view.CreatedAt.Equal(fixedNow) || !view.UpdatedAt.Equal(fixedNow) || view.LinkedPersona != nil {
		t.Fatalf("unexpected synthetic profile: %+v", view)
	}

	id := missingPersona(t)
	p, err := s.QueryPersona(ctx, id)
	if err != nil {
		t.Fatalf("QueryPersona: %v", err)
	}
	if p.Identifier != id || p.HasPrivateKey || p.HasLogout || p.LinkedProfiles.Len() != 0 {
		t.Fatalf("unexpected synthetic persona: %+v", p)
	}
	if by, err := s.QueryPersonaByProfile(ctx, prof); err != nil || by != nil {
		t.Fatalf("QueryPersonaByProfile = %v, %v", by, err)
	}
}

func TestQueryLocalKey_ProfileFallback(t *testing.T) {
	s, st := newService(t, nil)
	ctx := context.Background()
	kp := keyPair(t, "a")
	personaKey := crypto.DeriveLocalKey(kp.PublicKey, testWords)
	linked := domain.NewProfileIdentifier("net", "linked")
	if err := s.CreateProfileWithPersona(ctx, linked, domain.LinkedProfileDetails{},
		domain.ProfilePersonaKeys{PublicKey: kp.PublicKey, LocalKey: &personaKey}); err != nil {
		t.Fatal(err)
	}

	got, err := s.QueryLocalKey(ctx, linked)
	if err != nil || got == nil || *got != personaKey {
		t.Fatalf("fallback local key = %v, %v", got, err)
	}

	var own domain.AESKey
	own.Algorithm = domain.AlgorithmA256GCM
	own.K[0] = 0xAA
	err = st.WithWriteAccess(ctx, func(ctx context.Context, tx domain.PersonaTx) error {
		return tx.UpdateProfile(ctx, domain.ProfileRecord{Identifier: linked, LocalKey: &own})
	})
	if err != nil {
		t.Fatal(err)
	}
	if got, _ := s.QueryLocalKey(ctx, linked); got == nil || *got != own {
		t.Fatalf("own local key not preferred: %v", got)
	}

	if got, err := s.QueryLocalKey(ctx, domain.NewProfileIdentifier("net", "nobody")); err != nil || got != nil {
		t.Fatalf("unknown profile = %v, %v", got, err)
	}
}

func TestQueryKeysThroughProfile(t *testing.T) {
	s, _ := newService(t, nil)
	ctx := context.Background()
	kp := keyPair(t, "a")
	prof := domain.NewProfileIdentifier("net", "alice")
	if err := s.CreateProfileWithPersona(ctx, prof, domain.LinkedProfileDetails{},
		domain.ProfilePersonaKeys{PublicKey: kp.PublicKey, PrivateKey: &kp.PrivateKey}); err != nil {
		t.Fatal(err)
	}

	pub, err := s.QueryPublicKey(ctx, prof)
	if err != nil || pub == nil || *pub != kp.PublicKey {
		t.Fatalf("QueryPublicKey = %v, %v", pub, err)
	}
	priv, err := s.QueryPrivateKey(ctx, prof)
	if err != nil || priv == nil || *priv != kp.PrivateKey {
		t.Fatalf("QueryPrivateKey = %v, %v", priv, err)
	}

	contact := createPersona(t, s, "b", "", false)
	if priv, err := s.QueryPrivateKey(ctx, contact); err != nil || priv != nil {
		t.Fatalf("public-only persona private key = %v, %v", priv, err)
	}
	if pub, err := s.QueryPublicKey(ctx, domain.NewProfileIdentifier("net", "nobody")); err != nil || pub != nil {
		t.Fatalf("unlinked profile public key = %v, %v", pub, err)
	}
}

func TestDetachProfile(t *testing.T) {
	s, _ := newService(t, nil)
	ctx := context.Background()
	kp := keyPair(t, "a")
	prof := domain.NewProfileIdentifier("net", "alice")
	if err := s.CreateProfileWithPersona(ctx, prof, domain.LinkedProfileDetails{}, domain.ProfilePersonaKeys{PublicKey: kp.PublicKey}); err != nil {
		t.Fatal(err)
	}
	if err := s.DetachProfile(ctx, prof); err != nil {
		t.Fatalf("DetachProfile: %v", err)
	}
	id, _ := crypto.PersonaIdentifierFromPublicKey(kp.PublicKey)
	if p, _ := s.QueryPersona(ctx, id); p.LinkedProfiles.Has(prof) {
		t.Fatal("persona still links profile")
	}
	if by, _ := s.QueryPersonaByProfile(ctx, prof); by != nil {
		t.Fatal("profile still resolves to persona")
	}
}

func TestProfileAvatars(t *testing.T) {
	s, _ := newService(t, avatar.NewMemoryCache())
	ctx := context.Background()
	prof := domain.NewProfileIdentifier("net", "alice")

	if err := s.SetProfileAvatar(ctx, prof, "https://example.com/a.png"); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("non data URL: want ErrInvalidArgument, got %v", err)
	}
	if err := s.SetProfileAvatar(ctx, prof, "data:image/png;base64,AAAA"); err != nil {
		t.Fatalf("SetProfileAvatar: %v", err)
	}
	view, _ := s.QueryProfile(ctx, prof)
	if view.Avatar != "data:image/png;base64,AAAA" {
		t.Fatalf("Avatar = %q", view.Avatar)
	}
}

func TestProjectionToleratesAvatarFailure(t *testing.T) {
	s, _ := newService(t, brokenAvatars{})
	ctx := context.Background()
	kp := keyPair(t, "a")
	prof := domain.NewProfileIdentifier("net", "alice")
	if err := s.CreateProfileWithPersona(ctx, prof, domain.LinkedProfileDetails{}, domain.ProfilePersonaKeys{PublicKey: kp.PublicKey}); err != nil {
		t.Fatal(err)
	}

	view, err := s.QueryProfile(ctx, prof)
	if err != nil {
		t.Fatalf("QueryProfile: %v", err)
	}
	if view.Avatar != "" || view.LinkedPersona == nil {
		t.Fatalf("unexpected view: %+v", view)
	}
	list, err := s.QueryProfilesWithQuery(ctx, domain.ProfileQuery{Network: "net"})
	if err != nil || len(list) != 1 {
		t.Fatalf("QueryProfilesWithQuery = %v, %v", list, err)
	}
}

func TestQueryProfilesPagedProjects(t *testing.T) {
	s, _ := newService(t, nil)
	ctx := context.Background()
	kp := keyPair(t, "a")
	for _, user := range []string{"c", "a", "b"} {
		if err := s.CreateProfileWithPersona(ctx, domain.NewProfileIdentifier("net", user), domain.LinkedProfileDetails{},
			domain.ProfilePersonaKeys{PublicKey: kp.PublicKey}); err != nil {
			t.Fatal(err)
		}
	}
	page, err := s.QueryProfilesPaged(ctx, domain.ProfilePageRequest{Network: "net", Count: 2})
	if err != nil {
		t.Fatalf("QueryProfilesPaged: %v", err)
	}
	if len(page) != 2 || page[0].Identifier.UserID != "a" || page[1].Identifier.UserID != "b" {
		t.Fatalf("page = %+v", page)
	}
	for _, p := range page {
		if p.LinkedPersona == nil {
			t.Fatalf("profile %s missing linked persona", p.Identifier)
		}
	}
}

func TestQueryPersonasWithQuery(t *testing.T) {
	s, _ := newService(t, nil)
	ctx := context.Background()
	createPersona(t, s, "a", "Alice", true)
	createPersona(t, s, "b", "Bob", false)

	yes := true
	owned, err := s.QueryPersonasWithQuery(ctx, domain.PersonaQuery{HasPrivateKey: &yes})
	if err != nil {
		t.Fatalf("QueryPersonasWithQuery: %v", err)
	}
	if len(owned) != 1 || owned[0].Nickname != "Alice" {
		t.Fatalf("owned = %+v", owned)
	}
	named, _ := s.QueryPersonasWithQuery(ctx, domain.PersonaQuery{NameContains: "o"})
	if len(named) != 1 || named[0].Nickname != "Bob" {
		t.Fatalf("named = %+v", named)
	}
}
