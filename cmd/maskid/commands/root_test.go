package commands

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := execute(context.Background(), root)
	return out.String(), err
}

func TestParseProfileArg(t *testing.T) {
	a, err := parseProfileArg("twitter.com/alice")
	if err != nil {
		t.Fatalf("parse short form: %v", err)
	}
	b, err := parseProfileArg("person:twitter.com/alice")
	if err != nil {
		t.Fatalf("parse full form: %v", err)
	}
	if a != b {
		t.Fatalf("forms differ: %v vs %v", a, b)
	}
	if _, err := parseIdentifierArg("ec_key:secp256k1/"); err == nil {
		t.Fatalf("expected error for empty point")
	}
}

func TestFailedCommandReleasesWire(t *testing.T) {
	home := t.TempDir()
	if _, err := run(t, "--home", home, "--store", "sqlite", "persona", "show", "not-an-identifier"); err == nil {
		t.Fatal("expected error for malformed identifier")
	}
	if wire != nil {
		t.Fatal("wire left open after a failed command")
	}
	if _, err := run(t, "--home", home, "--store", "sqlite", "persona", "list"); err != nil {
		t.Fatalf("list after failure: %v", err)
	}
}

func TestPersonaLifecycle(t *testing.T) {
	home := t.TempDir()
	base := []string{"--home", home, "--store", "file"}

	out, err := run(t, append(base, "persona", "create", "--nickname", "alice")...)
	if err != nil {
		t.Fatalf("create: %v\n%s", err, out)
	}
	var id string
	for _, line := range strings.Split(out, "\n") {
		if v, ok := strings.CutPrefix(line, "Identifier:"); ok {
			id = strings.TrimSpace(v)
		}
	}
	if !strings.HasPrefix(id, "ec_key:secp256k1/") {
		t.Fatalf("no identifier in output:\n%s", out)
	}

	out, err = run(t, append(base, "persona", "list")...)
	if err != nil || !strings.Contains(out, "alice") {
		t.Fatalf("list: %v\n%s", err, out)
	}

	if out, err = run(t, append(base, "profile", "link", "twitter.com/alice", id)...); err != nil {
		t.Fatalf("link: %v\n%s", err, out)
	}
	out, err = run(t, append(base, "profile", "whoami", "twitter.com/alice")...)
	if err != nil || !strings.Contains(out, id) {
		t.Fatalf("whoami: %v\n%s", err, out)
	}

	if out, err = run(t, append(base, "profile", "avatar", "twitter.com/alice", "data:image/png;base64,AAAA")...); err != nil {
		t.Fatalf("avatar: %v\n%s", err, out)
	}
	out, err = run(t, append(base, "profile", "show", "twitter.com/alice")...)
	if err != nil || !strings.Contains(out, "data:image/png;base64,AAAA") {
		t.Fatalf("avatar not kept across runs: %v\n%s", err, out)
	}

	if _, err = run(t, append(base, "persona", "delete", id)...); err == nil {
		t.Fatalf("safe delete of a persona with a private key succeeded")
	}

	backup := filepath.Join(home, "backup.bin")
	if out, err = run(t, append(base, "-p", "Correct-Horse-42!", "backup", "export", backup)...); err != nil {
		t.Fatalf("export: %v\n%s", err, out)
	}

	if out, err = run(t, append(base, "persona", "delete", "--force", id)...); err != nil {
		t.Fatalf("forced delete: %v\n%s", err, out)
	}
	out, err = run(t, append(base, "persona", "list")...)
	if err != nil || strings.Contains(out, "alice") {
		t.Fatalf("persona still listed: %v\n%s", err, out)
	}

	out, err = run(t, append(base, "-p", "Correct-Horse-42!", "backup", "import", backup)...)
	if err != nil || !strings.Contains(out, "Restored 1 personas") {
		t.Fatalf("import: %v\n%s", err, out)
	}
}
