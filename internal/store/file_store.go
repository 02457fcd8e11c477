package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"maskid/internal/domain"
)

// Documents a FileStore keeps under its home directory.
const (
	personasFile = "personas.json"
	avatarsFile  = "avatars.json"
)

// FileStore persists the persona database as a single JSON document.
//
// Commits replace the document atomically, so queries never observe a
// partially written unit of work. Only one process should write a home
// directory at a time.
type FileStore struct {
	reader

	path    string
	avatars string
	mu      sync.Mutex
	now     func() time.Time
}

// NewFileStore returns a store rooted at home. The document is created on the
// first commit.
func NewFileStore(home string, opts ...Option) *FileStore {
	o := buildOptions(opts)
	s := &FileStore{
		path:    filepath.Join(home, personasFile),
		avatars: filepath.Join(home, avatarsFile),
		now:     o.now,
	}
	s.reader = reader{load: s.load}
	return s
}

// Path returns the location of the JSON document.
func (s *FileStore) Path() string { return s.path }

func (s *FileStore) load() (*state, error) {
	st := newState()
	if _, err := loadDocument(s.path, st); err != nil {
		return nil, domain.StoreFailure("load personas", fmt.Errorf("read %s: %w", s.path, err))
	}
	if st.Personas == nil {
		st.Personas = make(map[string]domain.PersonaRecord)
	}
	if st.Profiles == nil {
		st.Profiles = make(map[string]domain.ProfileRecord)
	}
	return st, nil
}

// WithWriteAccess loads the document, runs fn on it and writes it back if fn succeeds.
func (s *FileStore) WithWriteAccess(ctx context.Context, fn func(ctx context.Context, tx domain.PersonaTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.load()
	if err != nil {
		return err
	}
	if err := fn(ctx, newStateTx(st, s.now)); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := saveDocument(s.path, st, 0o600); err != nil {
		return domain.StoreFailure("commit personas", err)
	}
	return nil
}

// QueryAvatar returns the cached avatar data URL of profile.
func (s *FileStore) QueryAvatar(ctx context.Context, profile domain.ProfileIdentifier) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	avatars, err := s.loadAvatars()
	if err != nil {
		return "", false, err
	}
	url, ok := avatars[profile.String()]
	return url, ok, nil
}

// StoreAvatar records the avatar data URL of profile, replacing any previous one.
func (s *FileStore) StoreAvatar(ctx context.Context, profile domain.ProfileIdentifier, dataURL string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	avatars, err := s.loadAvatars()
	if err != nil {
		return err
	}
	avatars[profile.String()] = dataURL
	if err := saveDocument(s.avatars, avatars, 0o600); err != nil {
		return domain.StoreFailure("store avatar", err)
	}
	return nil
}

func (s *FileStore) loadAvatars() (map[string]string, error) {
	avatars := make(map[string]string)
	if _, err := loadDocument(s.avatars, &avatars); err != nil {
		return nil, domain.StoreFailure("load avatars", fmt.Errorf("read %s: %w", s.avatars, err))
	}
	if avatars == nil {
		avatars = make(map[string]string)
	}
	return avatars, nil
}

// Compile-time assertions for FileStore.
var (
	_ domain.PersonaStore = (*FileStore)(nil)
	_ domain.AvatarCache  = (*FileStore)(nil)
)
