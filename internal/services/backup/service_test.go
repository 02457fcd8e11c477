package backup_test

import (
	"context"
	"errors"
	"testing"

	"maskid/internal/crypto"
	"maskid/internal/domain"
	"maskid/internal/services/backup"
	"maskid/internal/services/persona"
	"maskid/internal/store"
)

const (
	testWords  = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"
	passphrase = "Correct-Horse-42"
)

var cheap = store.ScryptParams{N: 1 << 10, R: 8, P: 1}

func newBackup(t *testing.T) (*backup.Service, *persona.Service, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	ps := persona.New(st, nil)
	return backup.New(st, ps, backup.WithScryptParams(cheap)), ps, st
}

func TestExportImport_RoundTrip(t *testing.T) {
	ctx := context.Background()
	src, srcPersonas, _ := newBackup(t)

	owned, _, err := crypto.RecoverKeyPair(testWords, "owned")
	if err != nil {
		t.Fatal(err)
	}
	contact, _, err := crypto.RecoverKeyPair(testWords, "contact")
	if err != nil {
		t.Fatal(err)
	}
	prof := domain.NewProfileIdentifier("twitter.com", "alice")
	if err := srcPersonas.CreateProfileWithPersona(ctx, prof,
		domain.LinkedProfileDetails{ConnectionConfirmState: domain.ConnectionConfirmed},
		domain.ProfilePersonaKeys{PublicKey: owned.PublicKey, PrivateKey: &owned.PrivateKey, Nickname: "alice"},
	); err != nil {
		t.Fatal(err)
	}
	contactID, err := srcPersonas.CreatePersonaByJSONWebKey(ctx, domain.PersonaKeys{PublicKey: contact.PublicKey})
	if err != nil {
		t.Fatal(err)
	}

	blob, err := src.Export(ctx, passphrase)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}

	dst, dstPersonas, _ := newBackup(t)
	report, err := dst.Import(ctx, passphrase, blob)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if len(report.Personas) != 2 || len(report.Skipped) != 0 || report.Profiles != 1 {
		t.Fatalf("report = %+v", report)
	}

	ownedID, _ := crypto.PersonaIdentifierFromPublicKey(owned.PublicKey)
	p, err := dstPersonas.QueryPersona(ctx, ownedID)
	if err != nil {
		t.Fatal(err)
	}
	if !p.HasPrivateKey || p.Nickname != "alice" || !p.LinkedProfiles.Has(prof) {
		t.Fatalf("restored persona = %+v", p)
	}
	if by, _ := dstPersonas.QueryPersonaByProfile(ctx, prof); by == nil || by.Identifier != ownedID {
		t.Fatalf("profile link not restored: %v", by)
	}
	c, _ := dstPersonas.QueryPersona(ctx, contactID)
	if c.HasPrivateKey {
		t.Fatal("contact gained a private key")
	}

	// A second import skips the unlinked persona that already exists.
	again, err := dst.Import(ctx, passphrase, blob)
	if err != nil {
		t.Fatalf("second Import: %v", err)
	}
	if len(again.Skipped) != 1 || again.Skipped[0] != contactID {
		t.Fatalf("second report = %+v", again)
	}
}

func TestExportImport_KeepsUninitializedLinkedPersona(t *testing.T) {
	ctx := context.Background()
	src, srcPersonas, _ := newBackup(t)

	kp, _, err := crypto.RecoverKeyPair(testWords, "pending")
	if err != nil {
		t.Fatal(err)
	}
	id, err := srcPersonas.CreatePersonaByJSONWebKey(ctx, domain.PersonaKeys{
		PublicKey:     kp.PublicKey,
		PrivateKey:    &kp.PrivateKey,
		Uninitialized: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	prof := domain.NewProfileIdentifier("twitter.com", "pending")
	if err := srcPersonas.CreateProfileWithPersona(ctx, prof, domain.LinkedProfileDetails{},
		domain.ProfilePersonaKeys{PublicKey: kp.PublicKey}); err != nil {
		t.Fatal(err)
	}
	if p, _ := srcPersonas.QueryPersona(ctx, id); !p.Uninitialized {
		t.Fatal("source persona lost its uninitialized flag")
	}

	blob, err := src.Export(ctx, passphrase)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	dst, dstPersonas, _ := newBackup(t)
	if _, err := dst.Import(ctx, passphrase, blob); err != nil {
		t.Fatalf("Import: %v", err)
	}

	p, err := dstPersonas.QueryPersona(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if !p.Uninitialized || !p.HasPrivateKey || !p.LinkedProfiles.Has(prof) {
		t.Fatalf("restored persona = %+v", p)
	}
	if err := dstPersonas.SetupPersona(ctx, id); err != nil {
		t.Fatalf("SetupPersona: %v", err)
	}
	if p, _ := dstPersonas.QueryPersona(ctx, id); p.Uninitialized {
		t.Fatal("setup did not initialize the restored persona")
	}
}

func TestImport_WrongPassphrase(t *testing.T) {
	ctx := context.Background()
	src, _, _ := newBackup(t)
	blob, err := src.Export(ctx, passphrase)
	if err != nil {
		t.Fatal(err)
	}
	dst, _, _ := newBackup(t)
	if _, err := dst.Import(ctx, "Wrong-Horse-42!", blob); !errors.Is(err, backup.ErrWrongPassphrase) {
		t.Fatalf("want ErrWrongPassphrase, got %v", err)
	}
}

func TestExport_WeakPassphrase(t *testing.T) {
	tests := []string{"short", "alllowercase-but-long1", "NoDigitsHere!!", "NoSymbols12345"}
	src, _, _ := newBackup(t)
	for _, pass := range tests {
		t.Run(pass, func(t *testing.T) {
			if _, err := src.Export(context.Background(), pass); !errors.Is(err, backup.ErrWeakPassphrase) {
				t.Fatalf("want ErrWeakPassphrase, got %v", err)
			}
		})
	}
}
