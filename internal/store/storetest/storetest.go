// Package storetest holds the behavioural suite every domain.PersonaStore
// implementation must pass.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"maskid/internal/domain"
)

// Factory opens an empty store for one subtest.
type Factory func(t *testing.T) domain.PersonaStore

// epoch is millisecond-aligned so stores that keep millisecond precision
// round-trip it exactly.
var epoch = time.UnixMilli(1_700_000_000_000).UTC()

// PersonaID returns a deterministic identifier for index n.
func PersonaID(n byte) domain.PersonaIdentifier {
	point := make([]byte, 33)
	point[0] = 0x02
	for i := 1; i < len(point); i++ {
		point[i] = n
	}
	return domain.NewPersonaIdentifier(domain.CurveSecp256k1, point)
}

// Persona returns a record for PersonaID(n), with a private key when withPrivate.
func Persona(n byte, nickname string, withPrivate bool) domain.PersonaRecord {
	var pub domain.ECPublicKey
	pub.Curve = domain.CurveSecp256k1
	pub.X[0], pub.Y[0] = n, n
	r := domain.PersonaRecord{
		Identifier: PersonaID(n),
		CreatedAt:  epoch,
		UpdatedAt:  epoch,
		PublicKey:  pub,
		Nickname:   nickname,
	}
	if withPrivate {
		priv := domain.ECPrivateKey{Curve: pub.Curve, X: pub.X, Y: pub.Y}
		priv.D[0] = n
		r.PrivateKey = &priv
	}
	return r
}

// Run executes the suite against stores produced by open.
func Run(t *testing.T, open Factory) {
	t.Helper()
	tests := []struct {
		name string
		fn   func(t *testing.T, s domain.PersonaStore)
	}{
		{"CreateAndQuery", testCreateAndQuery},
		{"CreateDuplicate", testCreateDuplicate},
		{"RollbackOnError", testRollbackOnError},
		{"UpdatePersona", testUpdatePersona},
		{"CreateOrUpdate", testCreateOrUpdate},
		{"SafeDelete", testSafeDelete},
		{"AttachDetach", testAttachDetach},
		{"AttachMovesProfile", testAttachMovesProfile},
		{"DeleteClearsLinks", testDeleteClearsLinks},
		{"QueryPersonas", testQueryPersonas},
		{"QueryProfilesPaged", testQueryProfilesPaged},
		{"UpdateProfile", testUpdateProfile},
		{"CanceledContext", testCanceledContext},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.fn(t, open(t))
		})
	}
}

func write(t *testing.T, s domain.PersonaStore, fn func(ctx context.Context, tx domain.PersonaTx) error) {
	t.Helper()
	if err := s.WithWriteAccess(context.Background(), fn); err != nil {
		t.Fatalf("WithWriteAccess: %v", err)
	}
}

func mustPersona(t *testing.T, s domain.PersonaReader, id domain.PersonaIdentifier) domain.PersonaRecord {
	t.Helper()
	r, ok, err := s.QueryPersona(context.Background(), id)
	if err != nil {
		t.Fatalf("QueryPersona: %v", err)
	}
	if !ok {
		t.Fatalf("persona %s missing", id)
	}
	return r
}

func mustProfile(t *testing.T, s domain.PersonaReader, id domain.ProfileIdentifier) domain.ProfileRecord {
	t.Helper()
	r, ok, err := s.QueryProfile(context.Background(), id)
	if err != nil {
		t.Fatalf("QueryProfile: %v", err)
	}
	if !ok {
		t.Fatalf("profile %s missing", id)
	}
	return r
}

func testCreateAndQuery(t *testing.T, s domain.PersonaStore) {
	want := Persona(1, "alice", true)
	want.Mnemonic = &domain.MnemonicRecord{Words: "w", Parameters: domain.MnemonicParameters{Path: "m/44'/60'/0'/0/0"}}
	write(t, s, func(ctx context.Context, tx domain.PersonaTx) error {
		return tx.CreatePersona(ctx, want)
	})

	got := mustPersona(t, s, want.Identifier)
	if got.Nickname != "alice" || got.PrivateKey == nil || got.PrivateKey.D != want.PrivateKey.D {
		t.Fatalf("unexpected record: %+v", got)
	}
	if got.Mnemonic == nil || got.Mnemonic.Words != "w" {
		t.Fatalf("mnemonic lost: %+v", got.Mnemonic)
	}
	if !got.CreatedAt.Equal(epoch) {
		t.Fatalf("CreatedAt = %v, want %v", got.CreatedAt, epoch)
	}

	if _, ok, err := s.QueryPersona(context.Background(), PersonaID(9)); err != nil || ok {
		t.Fatalf("missing persona: ok=%v err=%v", ok, err)
	}
	if _, ok, err := s.QueryProfile(context.Background(), domain.NewProfileIdentifier("net", "nobody")); err != nil || ok {
		t.Fatalf("missing profile: ok=%v err=%v", ok, err)
	}
}

func testCreateDuplicate(t *testing.T, s domain.PersonaStore) {
	r := Persona(1, "alice", false)
	write(t, s, func(ctx context.Context, tx domain.PersonaTx) error { return tx.CreatePersona(ctx, r) })

	err := s.WithWriteAccess(context.Background(), func(ctx context.Context, tx domain.PersonaTx) error {
		return tx.CreatePersona(ctx, r)
	})
	if !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("want ErrAlreadyExists, got %v", err)
	}
}

func testRollbackOnError(t *testing.T, s domain.PersonaStore) {
	boom := errors.New("boom")
	err := s.WithWriteAccess(context.Background(), func(ctx context.Context, tx domain.PersonaTx) error {
		if err := tx.CreatePersona(ctx, Persona(1, "alice", true)); err != nil {
			return err
		}
		// Writes are visible inside the unit of work.
		if _, ok, err := tx.QueryPersona(ctx, PersonaID(1)); err != nil || !ok {
			t.Errorf("uncommitted write not visible in tx: ok=%v err=%v", ok, err)
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("want boom, got %v", err)
	}
	if _, ok, _ := s.QueryPersona(context.Background(), PersonaID(1)); ok {
		t.Fatal("rolled back persona is visible")
	}
}

func testUpdatePersona(t *testing.T, s domain.PersonaStore) {
	write(t, s, func(ctx context.Context, tx domain.PersonaTx) error {
		return tx.CreatePersona(ctx, Persona(1, "alice", true))
	})
	nick := "bob"
	write(t, s, func(ctx context.Context, tx domain.PersonaTx) error {
		return tx.UpdatePersona(ctx, domain.PersonaPatch{Identifier: PersonaID(1), Nickname: &nick}, domain.MergeIgnore)
	})
	got := mustPersona(t, s, PersonaID(1))
	if got.Nickname != "bob" {
		t.Fatalf("Nickname = %q", got.Nickname)
	}
	if got.PrivateKey == nil {
		t.Fatal("undefined fields must be ignored")
	}

	err := s.WithWriteAccess(context.Background(), func(ctx context.Context, tx domain.PersonaTx) error {
		return tx.UpdatePersona(ctx, domain.PersonaPatch{Identifier: PersonaID(2), Nickname: &nick}, domain.MergeIgnore)
	})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func testCreateOrUpdate(t *testing.T, s domain.PersonaStore) {
	pub := Persona(1, "", false)
	write(t, s, func(ctx context.Context, tx domain.PersonaTx) error {
		return tx.CreateOrUpdatePersona(ctx, pub, domain.MergeIgnore)
	})
	full := Persona(1, "alice", true)
	write(t, s, func(ctx context.Context, tx domain.PersonaTx) error {
		return tx.CreateOrUpdatePersona(ctx, full, domain.MergeIgnore)
	})
	got := mustPersona(t, s, PersonaID(1))
	if got.PrivateKey == nil || got.Nickname != "alice" {
		t.Fatalf("merge lost fields: %+v", got)
	}
}

func testSafeDelete(t *testing.T, s domain.PersonaStore) {
	write(t, s, func(ctx context.Context, tx domain.PersonaTx) error {
		if err := tx.CreatePersona(ctx, Persona(1, "", true)); err != nil {
			return err
		}
		return tx.CreatePersona(ctx, Persona(2, "", false))
	})

	var removedPrivate, removedPublic bool
	write(t, s, func(ctx context.Context, tx domain.PersonaTx) error {
		var err error
		if removedPrivate, err = tx.SafeDeletePersona(ctx, PersonaID(1)); err != nil {
			return err
		}
		removedPublic, err = tx.SafeDeletePersona(ctx, PersonaID(2))
		return err
	})
	if removedPrivate {
		t.Fatal("safe delete removed a persona holding a private key")
	}
	if !removedPublic {
		t.Fatal("safe delete kept a public-only persona")
	}
	mustPersona(t, s, PersonaID(1))
	if _, ok, _ := s.QueryPersona(context.Background(), PersonaID(2)); ok {
		t.Fatal("public-only persona still present")
	}
}

func testAttachDetach(t *testing.T, s domain.PersonaStore) {
	prof := domain.NewProfileIdentifier("twitter.com", "alice")
	write(t, s, func(ctx context.Context, tx domain.PersonaTx) error {
		if err := tx.CreatePersona(ctx, Persona(1, "", true)); err != nil {
			return err
		}
		return tx.AttachProfile(ctx, prof, PersonaID(1), domain.LinkedProfileDetails{ConnectionConfirmState: domain.ConnectionConfirmed})
	})

	p := mustPersona(t, s, PersonaID(1))
	d, ok := p.LinkedProfiles.Get(prof)
	if !ok || d.ConnectionConfirmState != domain.ConnectionConfirmed {
		t.Fatalf("persona link missing: %+v", p.LinkedProfiles.Entries())
	}
	pr := mustProfile(t, s, prof)
	if pr.LinkedPersona == nil || *pr.LinkedPersona != PersonaID(1) {
		t.Fatalf("profile link missing: %+v", pr)
	}
	byProfile, ok, err := s.QueryPersonaByProfile(context.Background(), prof)
	if err != nil || !ok || byProfile.Identifier != PersonaID(1) {
		t.Fatalf("QueryPersonaByProfile: ok=%v err=%v", ok, err)
	}

	err = s.WithWriteAccess(context.Background(), func(ctx context.Context, tx domain.PersonaTx) error {
		return tx.AttachProfile(ctx, prof, PersonaID(7), domain.LinkedProfileDetails{})
	})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("attach to unknown persona: want ErrNotFound, got %v", err)
	}

	write(t, s, func(ctx context.Context, tx domain.PersonaTx) error { return tx.DetachProfile(ctx, prof) })
	if mustPersona(t, s, PersonaID(1)).LinkedProfiles.Has(prof) {
		t.Fatal("persona still links detached profile")
	}
	if mustProfile(t, s, prof).LinkedPersona != nil {
		t.Fatal("profile still links persona")
	}
	if _, ok, _ := s.QueryPersonaByProfile(context.Background(), prof); ok {
		t.Fatal("QueryPersonaByProfile found a detached profile")
	}
}

func testAttachMovesProfile(t *testing.T, s domain.PersonaStore) {
	prof := domain.NewProfileIdentifier("twitter.com", "alice")
	write(t, s, func(ctx context.Context, tx domain.PersonaTx) error {
		for n := byte(1); n <= 2; n++ {
			if err := tx.CreatePersona(ctx, Persona(n, "", true)); err != nil {
				return err
			}
		}
		if err := tx.AttachProfile(ctx, prof, PersonaID(1), domain.LinkedProfileDetails{}); err != nil {
			return err
		}
		return tx.AttachProfile(ctx, prof, PersonaID(2), domain.LinkedProfileDetails{})
	})
	if mustPersona(t, s, PersonaID(1)).LinkedProfiles.Has(prof) {
		t.Fatal("previous persona still links the profile")
	}
	if !mustPersona(t, s, PersonaID(2)).LinkedProfiles.Has(prof) {
		t.Fatal("new persona does not link the profile")
	}
	if got := mustProfile(t, s, prof).LinkedPersona; got == nil || *got != PersonaID(2) {
		t.Fatalf("profile links %v", got)
	}
}

func testDeleteClearsLinks(t *testing.T, s domain.PersonaStore) {
	prof := domain.NewProfileIdentifier("twitter.com", "alice")
	write(t, s, func(ctx context.Context, tx domain.PersonaTx) error {
		if err := tx.CreatePersona(ctx, Persona(1, "", true)); err != nil {
			return err
		}
		if err := tx.AttachProfile(ctx, prof, PersonaID(1), domain.LinkedProfileDetails{}); err != nil {
			return err
		}
		return tx.DeletePersona(ctx, PersonaID(1))
	})
	if _, ok, _ := s.QueryPersona(context.Background(), PersonaID(1)); ok {
		t.Fatal("deleted persona present")
	}
	if mustProfile(t, s, prof).LinkedPersona != nil {
		t.Fatal("profile still points at deleted persona")
	}
	write(t, s, func(ctx context.Context, tx domain.PersonaTx) error {
		return tx.DeletePersona(ctx, PersonaID(1))
	})
}

func testQueryPersonas(t *testing.T, s domain.PersonaStore) {
	write(t, s, func(ctx context.Context, tx domain.PersonaTx) error {
		for _, r := range []domain.PersonaRecord{
			Persona(3, "Carol", true),
			Persona(1, "alice", true),
			Persona(2, "", false),
		} {
			if err := tx.CreatePersona(ctx, r); err != nil {
				return err
			}
		}
		return nil
	})
	ctx := context.Background()

	all, err := s.QueryPersonas(ctx, domain.PersonaQuery{})
	if err != nil {
		t.Fatalf("QueryPersonas: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("len = %d, want 3", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i-1].Identifier.String() > all[i].Identifier.String() {
			t.Fatal("results not ordered by identifier")
		}
	}

	yes := true
	owned, _ := s.QueryPersonas(ctx, domain.PersonaQuery{HasPrivateKey: &yes})
	if len(owned) != 2 {
		t.Fatalf("HasPrivateKey filter: len = %d, want 2", len(owned))
	}
	named, _ := s.QueryPersonas(ctx, domain.PersonaQuery{NicknameEquals: "carol"})
	if len(named) != 1 || named[0].Identifier != PersonaID(3) {
		t.Fatalf("NicknameEquals filter: %+v", named)
	}
	byID, _ := s.QueryPersonas(ctx, domain.PersonaQuery{Identifiers: []domain.PersonaIdentifier{PersonaID(2)}})
	if len(byID) != 1 || byID[0].Identifier != PersonaID(2) {
		t.Fatalf("Identifiers filter: %+v", byID)
	}

	// Results are copies.
	all[0].Nickname = "mutated"
	if mustPersona(t, s, all[0].Identifier).Nickname == "mutated" {
		t.Fatal("query result aliases stored record")
	}
}

func testQueryProfilesPaged(t *testing.T, s domain.PersonaStore) {
	ids := []domain.ProfileIdentifier{
		domain.NewProfileIdentifier("net", "a"),
		domain.NewProfileIdentifier("net", "b"),
		domain.NewProfileIdentifier("net", "c"),
		domain.NewProfileIdentifier("other", "a"),
	}
	write(t, s, func(ctx context.Context, tx domain.PersonaTx) error {
		for _, id := range ids {
			if err := tx.CreateProfile(ctx, domain.ProfileRecord{Identifier: id, CreatedAt: epoch, UpdatedAt: epoch}); err != nil {
				return err
			}
		}
		return nil
	})
	ctx := context.Background()

	first, err := s.QueryProfilesPaged(ctx, domain.ProfilePageRequest{Network: "net", Count: 2})
	if err != nil {
		t.Fatalf("QueryProfilesPaged: %v", err)
	}
	if len(first) != 2 || first[0].Identifier != ids[0] || first[1].Identifier != ids[1] {
		t.Fatalf("first page: %+v", first)
	}
	after := first[1].Identifier
	second, _ := s.QueryProfilesPaged(ctx, domain.ProfilePageRequest{Network: "net", Count: 2, After: &after})
	if len(second) != 1 || second[0].Identifier != ids[2] {
		t.Fatalf("second page: %+v", second)
	}

	if _, err := s.QueryProfilesPaged(ctx, domain.ProfilePageRequest{}); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("zero count: want ErrInvalidArgument, got %v", err)
	}

	nets, _ := s.QueryProfiles(ctx, domain.ProfileQuery{Network: "other"})
	if len(nets) != 1 || nets[0].Identifier != ids[3] {
		t.Fatalf("Network filter: %+v", nets)
	}
}

func testUpdateProfile(t *testing.T, s domain.PersonaStore) {
	id := domain.NewProfileIdentifier("net", "a")
	write(t, s, func(ctx context.Context, tx domain.PersonaTx) error {
		return tx.CreateProfile(ctx, domain.ProfileRecord{Identifier: id, CreatedAt: epoch, UpdatedAt: epoch, Nickname: "A"})
	})
	key := domain.AESKey{Algorithm: domain.AlgorithmA256GCM}
	key.K[0] = 1
	write(t, s, func(ctx context.Context, tx domain.PersonaTx) error {
		return tx.UpdateProfile(ctx, domain.ProfileRecord{Identifier: id, LocalKey: &key})
	})
	got := mustProfile(t, s, id)
	if got.Nickname != "A" || got.LocalKey == nil || got.LocalKey.K != key.K {
		t.Fatalf("unexpected profile: %+v", got)
	}

	err := s.WithWriteAccess(context.Background(), func(ctx context.Context, tx domain.PersonaTx) error {
		return tx.UpdateProfile(ctx, domain.ProfileRecord{Identifier: domain.NewProfileIdentifier("net", "zz")})
	})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func testCanceledContext(t *testing.T, s domain.PersonaStore) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := s.WithWriteAccess(ctx, func(ctx context.Context, tx domain.PersonaTx) error {
		called = true
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
	if called {
		t.Fatal("unit of work ran with a canceled context")
	}
}
