package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"maskid/internal/domain"
	"maskid/internal/store/storetest"
)

func openTestStore(t *testing.T, path string) *Store {
	t.Helper()
	s, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) domain.PersonaStore {
		return openTestStore(t, filepath.Join(t.TempDir(), "maskid.db"))
	})
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open(context.Background(), "  "); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestReopenKeepsLinksInOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "maskid.db")
	ctx := context.Background()
	profiles := []domain.ProfileIdentifier{
		domain.NewProfileIdentifier("net", "zed"),
		domain.NewProfileIdentifier("net", "amy"),
		domain.NewProfileIdentifier("other", "kim"),
	}

	s, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	err = s.WithWriteAccess(ctx, func(ctx context.Context, tx domain.PersonaTx) error {
		if err := tx.CreatePersona(ctx, storetest.Persona(1, "alice", true)); err != nil {
			return err
		}
		for _, p := range profiles {
			if err := tx.AttachProfile(ctx, p, storetest.PersonaID(1), domain.LinkedProfileDetails{ConnectionConfirmState: domain.ConnectionConfirmed}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithWriteAccess: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s = openTestStore(t, path)
	r, ok, err := s.QueryPersona(ctx, storetest.PersonaID(1))
	if err != nil || !ok {
		t.Fatalf("QueryPersona: ok=%v err=%v", ok, err)
	}
	entries := r.LinkedProfiles.Entries()
	if len(entries) != len(profiles) {
		t.Fatalf("links = %d, want %d", len(entries), len(profiles))
	}
	for i, e := range entries {
		if e.Profile != profiles[i] {
			t.Fatalf("link %d = %s, want %s", i, e.Profile, profiles[i])
		}
	}
	if r.PrivateKey == nil || r.PrivateKey.D != storetest.Persona(1, "", true).PrivateKey.D {
		t.Fatal("private key did not round-trip")
	}
}

func TestAvatarCache(t *testing.T) {
	s := openTestStore(t, filepath.Join(t.TempDir(), "maskid.db"))
	ctx := context.Background()
	id := domain.NewProfileIdentifier("net", "alice")

	if _, ok, err := s.QueryAvatar(ctx, id); err != nil || ok {
		t.Fatalf("empty cache: ok=%v err=%v", ok, err)
	}
	if err := s.StoreAvatar(ctx, id, "data:image/png;base64,AAAA"); err != nil {
		t.Fatalf("StoreAvatar: %v", err)
	}
	if err := s.StoreAvatar(ctx, id, "data:image/png;base64,BBBB"); err != nil {
		t.Fatalf("StoreAvatar overwrite: %v", err)
	}
	got, ok, err := s.QueryAvatar(ctx, id)
	if err != nil || !ok || got != "data:image/png;base64,BBBB" {
		t.Fatalf("QueryAvatar = %q ok=%v err=%v", got, ok, err)
	}
}

func TestWriteAccessReleasedAfterPanic(t *testing.T) {
	s := openTestStore(t, filepath.Join(t.TempDir(), "maskid.db"))
	ctx := context.Background()

	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("expected panic to propagate")
			}
		}()
		_ = s.WithWriteAccess(ctx, func(ctx context.Context, tx domain.PersonaTx) error {
			if err := tx.CreatePersona(ctx, storetest.Persona(1, "lost", false)); err != nil {
				return err
			}
			panic("unit of work failed")
		})
	}()

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	err := s.WithWriteAccess(ctx, func(ctx context.Context, tx domain.PersonaTx) error {
		return tx.CreatePersona(ctx, storetest.Persona(2, "kept", false))
	})
	if err != nil {
		t.Fatalf("write after panic: %v", err)
	}
	if _, ok, err := s.QueryPersona(ctx, storetest.PersonaID(1)); err != nil || ok {
		t.Fatalf("panicked write committed: ok=%v err=%v", ok, err)
	}
}

func TestUpSection(t *testing.T) {
	got := upSection("-- +migrate Up\nCREATE TABLE x (a);\n-- +migrate Down\nDROP TABLE x;\n")
	if got != "\nCREATE TABLE x (a);\n" {
		t.Fatalf("upSection = %q", got)
	}
	if upSection("SELECT 1;") != "SELECT 1;" {
		t.Fatal("content without markers must be returned as-is")
	}
}
