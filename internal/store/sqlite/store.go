package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"maskid/internal/domain"
	"maskid/internal/store/sqlite/migrations"

	_ "modernc.org/sqlite"
)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store persists personas, profiles and avatars in SQLite.
type Store struct {
	ops
	sqlDB   *sql.DB
	writeMu sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for UpdatedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Open opens the database at path and applies embedded migrations.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) +
		"?_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_txlock=immediate"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	s := &Store{sqlDB: sqlDB}
	s.ops = ops{q: sqlDB, now: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// WithWriteAccess runs fn inside one SQL transaction.
func (s *Store) WithWriteAccess(ctx context.Context, fn func(ctx context.Context, tx domain.PersonaTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	sqlTx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return domain.StoreFailure("begin transaction", err)
	}
	// No-op after Commit; releases the write lock if fn fails or panics.
	defer func() { _ = sqlTx.Rollback() }()

	if err := fn(ctx, &ops{q: sqlTx, now: s.now}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return domain.StoreFailure("commit transaction", err)
	}
	return nil
}

// ops implements the reader and transaction methods over a querier.
type ops struct {
	q   querier
	now func() time.Time
}

const personaColumns = `identifier, nickname, public_key, private_key, local_key, mnemonic,
	has_logout, uninitialized, created_at, updated_at`

const profileColumns = `identifier, network, user_id, nickname, local_key, linked_persona, created_at, updated_at`

// ---------- Reads ----------

func (o *ops) QueryPersona(ctx context.Context, id domain.PersonaIdentifier) (domain.PersonaRecord, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.PersonaRecord{}, false, err
	}
	rows, err := o.q.QueryContext(ctx, `SELECT `+personaColumns+` FROM personas WHERE identifier = ?`, id.String())
	if err != nil {
		return domain.PersonaRecord{}, false, domain.StoreFailure("query persona", err)
	}
	recs, err := o.collectPersonas(ctx, rows)
	if err != nil {
		return domain.PersonaRecord{}, false, domain.StoreFailure("query persona", err)
	}
	if len(recs) == 0 {
		return domain.PersonaRecord{}, false, nil
	}
	return recs[0], true, nil
}

func (o *ops) QueryPersonas(ctx context.Context, q domain.PersonaQuery) ([]domain.PersonaRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := o.q.QueryContext(ctx, `SELECT `+personaColumns+` FROM personas ORDER BY identifier`)
	if err != nil {
		return nil, domain.StoreFailure("query personas", err)
	}
	recs, err := o.collectPersonas(ctx, rows)
	if err != nil {
		return nil, domain.StoreFailure("query personas", err)
	}
	out := recs[:0]
	for _, r := range recs {
		if q.Matches(r) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (o *ops) QueryPersonaByProfile(ctx context.Context, id domain.ProfileIdentifier) (domain.PersonaRecord, bool, error) {
	prof, ok, err := o.QueryProfile(ctx, id)
	if err != nil || !ok || prof.LinkedPersona == nil {
		return domain.PersonaRecord{}, false, err
	}
	return o.QueryPersona(ctx, *prof.LinkedPersona)
}

func (o *ops) QueryProfile(ctx context.Context, id domain.ProfileIdentifier) (domain.ProfileRecord, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.ProfileRecord{}, false, err
	}
	rows, err := o.q.QueryContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE identifier = ?`, id.String())
	if err != nil {
		return domain.ProfileRecord{}, false, domain.StoreFailure("query profile", err)
	}
	recs, err := collectProfiles(rows)
	if err != nil {
		return domain.ProfileRecord{}, false, domain.StoreFailure("query profile", err)
	}
	if len(recs) == 0 {
		return domain.ProfileRecord{}, false, nil
	}
	return recs[0], true, nil
}

func (o *ops) QueryProfiles(ctx context.Context, q domain.ProfileQuery) ([]domain.ProfileRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := o.q.QueryContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE (? = '' OR network = ?) ORDER BY identifier`,
		q.Network, q.Network,
	)
	if err != nil {
		return nil, domain.StoreFailure("query profiles", err)
	}
	recs, err := collectProfiles(rows)
	if err != nil {
		return nil, domain.StoreFailure("query profiles", err)
	}
	out := recs[:0]
	for _, r := range recs {
		if q.Matches(r) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (o *ops) QueryProfilesPaged(ctx context.Context, page domain.ProfilePageRequest) ([]domain.ProfileRecord, error) {
	if page.Count <= 0 {
		return nil, domain.E(domain.KindInvalidArgument, "query profiles paged", "count must be greater than zero")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	after := ""
	if page.After != nil {
		after = page.After.String()
	}
	rows, err := o.q.QueryContext(ctx,
		`SELECT `+profileColumns+` FROM profiles
		 WHERE (? = '' OR network = ?) AND identifier > ?
		 ORDER BY identifier`,
		page.Network, page.Network, after,
	)
	if err != nil {
		return nil, domain.StoreFailure("query profiles paged", err)
	}
	recs, err := collectProfiles(rows)
	if err != nil {
		return nil, domain.StoreFailure("query profiles paged", err)
	}
	out := make([]domain.ProfileRecord, 0, page.Count)
	for _, r := range recs {
		if len(out) == page.Count {
			break
		}
		if page.Matches(r) {
			out = append(out, r)
		}
	}
	return out, nil
}

// ---------- Writes ----------

func (o *ops) CreatePersona(ctx context.Context, r domain.PersonaRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.Identifier.IsZero() {
		return domain.E(domain.KindInvalidArgument, "create persona", "identifier is required")
	}
	if _, ok, err := o.QueryPersona(ctx, r.Identifier); err != nil {
		return err
	} else if ok {
		return domain.E(domain.KindAlreadyExists, "create persona", "persona "+r.Identifier.String()+" already exists")
	}
	return o.putPersona(ctx, r, true)
}

func (o *ops) UpdatePersona(ctx context.Context, p domain.PersonaPatch, opts domain.UpdateOptions) error {
	old, ok, err := o.QueryPersona(ctx, p.Identifier)
	if err != nil {
		return err
	}
	if !ok {
		return domain.E(domain.KindNotFound, "update persona", "persona "+p.Identifier.String()+" not found")
	}
	return o.putPersona(ctx, old.Apply(p, opts, o.now()), false)
}

func (o *ops) CreateOrUpdatePersona(ctx context.Context, r domain.PersonaRecord, opts domain.UpdateOptions) error {
	_, ok, err := o.QueryPersona(ctx, r.Identifier)
	if err != nil {
		return err
	}
	if ok {
		return o.UpdatePersona(ctx, domain.PatchFromRecord(r), opts)
	}
	return o.putPersona(ctx, r, true)
}

func (o *ops) DeletePersona(ctx context.Context, id domain.PersonaIdentifier) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := o.q.ExecContext(ctx,
		`UPDATE profiles SET linked_persona = NULL, updated_at = ? WHERE linked_persona = ?`,
		toMillis(o.now()), id.String(),
	); err != nil {
		return domain.StoreFailure("delete persona", err)
	}
	if _, err := o.q.ExecContext(ctx, `DELETE FROM persona_profiles WHERE persona = ?`, id.String()); err != nil {
		return domain.StoreFailure("delete persona", err)
	}
	if _, err := o.q.ExecContext(ctx, `DELETE FROM personas WHERE identifier = ?`, id.String()); err != nil {
		return domain.StoreFailure("delete persona", err)
	}
	return nil
}

func (o *ops) SafeDeletePersona(ctx context.Context, id domain.PersonaIdentifier) (bool, error) {
	r, ok, err := o.QueryPersona(ctx, id)
	if err != nil || !ok {
		return false, err
	}
	if r.PrivateKey != nil || r.LinkedProfiles.Len() > 0 {
		return false, nil
	}
	return true, o.DeletePersona(ctx, id)
}

func (o *ops) CreateProfile(ctx context.Context, r domain.ProfileRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.Identifier.IsZero() {
		return domain.E(domain.KindInvalidArgument, "create profile", "identifier is required")
	}
	if r.LinkedPersona != nil {
		return domain.E(domain.KindInvalidArgument, "create profile", "link profiles with AttachProfile")
	}
	if _, ok, err := o.QueryProfile(ctx, r.Identifier); err != nil {
		return err
	} else if ok {
		return domain.E(domain.KindAlreadyExists, "create profile", "profile "+r.Identifier.String()+" already exists")
	}
	return o.insertProfile(ctx, r)
}

func (o *ops) UpdateProfile(ctx context.Context, r domain.ProfileRecord) error {
	old, ok, err := o.QueryProfile(ctx, r.Identifier)
	if err != nil {
		return err
	}
	if !ok {
		return domain.E(domain.KindNotFound, "update profile", "profile "+r.Identifier.String()+" not found")
	}
	if r.Nickname != "" {
		old.Nickname = r.Nickname
	}
	if r.LocalKey != nil {
		k := *r.LocalKey
		old.LocalKey = &k
	}
	localKey, err := jsonColumn(old.LocalKey)
	if err != nil {
		return domain.StoreFailure("update profile", err)
	}
	if _, err := o.q.ExecContext(ctx,
		`UPDATE profiles SET nickname = ?, local_key = ?, updated_at = ? WHERE identifier = ?`,
		old.Nickname, localKey, toMillis(o.now()), r.Identifier.String(),
	); err != nil {
		return domain.StoreFailure("update profile", err)
	}
	return nil
}

func (o *ops) AttachProfile(
	ctx context.Context,
	profile domain.ProfileIdentifier,
	persona domain.PersonaIdentifier,
	details domain.LinkedProfileDetails,
) error {
	rec, ok, err := o.QueryPersona(ctx, persona)
	if err != nil {
		return err
	}
	if !ok {
		return domain.E(domain.KindNotFound, "attach profile", "persona "+persona.String()+" not found")
	}
	now := o.now()

	prof, exists, err := o.QueryProfile(ctx, profile)
	if err != nil {
		return err
	}
	if !exists {
		if err := o.insertProfile(ctx, domain.ProfileRecord{Identifier: profile, CreatedAt: now, UpdatedAt: now}); err != nil {
			return err
		}
	} else if prof.LinkedPersona != nil && *prof.LinkedPersona != persona {
		if err := o.DetachProfile(ctx, profile); err != nil {
			return err
		}
	}

	if _, err := o.q.ExecContext(ctx,
		`INSERT INTO persona_profiles (persona, profile, position, confirm_state)
		 VALUES (?, ?, (SELECT COALESCE(MAX(position), -1) + 1 FROM persona_profiles WHERE persona = ?), ?)
		 ON CONFLICT(persona, profile) DO UPDATE SET confirm_state = excluded.confirm_state`,
		persona.String(), profile.String(), persona.String(), string(details.ConnectionConfirmState),
	); err != nil {
		return domain.StoreFailure("attach profile", err)
	}
	if err := o.touchPersona(ctx, rec.Identifier, now); err != nil {
		return err
	}
	if _, err := o.q.ExecContext(ctx,
		`UPDATE profiles SET linked_persona = ?, updated_at = ? WHERE identifier = ?`,
		persona.String(), toMillis(now), profile.String(),
	); err != nil {
		return domain.StoreFailure("attach profile", err)
	}
	return nil
}

func (o *ops) DetachProfile(ctx context.Context, profile domain.ProfileIdentifier) error {
	prof, ok, err := o.QueryProfile(ctx, profile)
	if err != nil || !ok || prof.LinkedPersona == nil {
		return err
	}
	now := o.now()
	if _, err := o.q.ExecContext(ctx,
		`DELETE FROM persona_profiles WHERE persona = ? AND profile = ?`,
		prof.LinkedPersona.String(), profile.String(),
	); err != nil {
		return domain.StoreFailure("detach profile", err)
	}
	if err := o.touchPersona(ctx, *prof.LinkedPersona, now); err != nil {
		return err
	}
	if _, err := o.q.ExecContext(ctx,
		`UPDATE profiles SET linked_persona = NULL, updated_at = ? WHERE identifier = ?`,
		toMillis(now), profile.String(),
	); err != nil {
		return domain.StoreFailure("detach profile", err)
	}
	return nil
}

// ---------- Row mapping ----------

func (o *ops) putPersona(ctx context.Context, r domain.PersonaRecord, insert bool) error {
	pub, err := json.Marshal(r.PublicKey)
	if err != nil {
		return domain.StoreFailure("encode public key", err)
	}
	priv, err := jsonColumn(r.PrivateKey)
	if err != nil {
		return domain.StoreFailure("encode private key", err)
	}
	local, err := jsonColumn(r.LocalKey)
	if err != nil {
		return domain.StoreFailure("encode local key", err)
	}
	mnemonic, err := jsonColumn(r.Mnemonic)
	if err != nil {
		return domain.StoreFailure("encode mnemonic", err)
	}

	args := []any{
		r.Nickname, string(pub), priv, local, mnemonic,
		boolInt(r.HasLogout), boolInt(r.Uninitialized), toMillis(r.CreatedAt), toMillis(r.UpdatedAt),
		r.Identifier.String(),
	}
	query := `UPDATE personas SET nickname = ?, public_key = ?, private_key = ?, local_key = ?, mnemonic = ?,
		has_logout = ?, uninitialized = ?, created_at = ?, updated_at = ? WHERE identifier = ?`
	if insert {
		query = `INSERT INTO personas (nickname, public_key, private_key, local_key, mnemonic,
			has_logout, uninitialized, created_at, updated_at, identifier)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	}
	if _, err := o.q.ExecContext(ctx, query, args...); err != nil {
		return domain.StoreFailure("write persona", err)
	}
	return o.putLinks(ctx, r.Identifier, r.LinkedProfiles)
}

// putLinks rewrites the persona side of every link in order.
func (o *ops) putLinks(ctx context.Context, id domain.PersonaIdentifier, links domain.LinkedProfiles) error {
	if _, err := o.q.ExecContext(ctx, `DELETE FROM persona_profiles WHERE persona = ?`, id.String()); err != nil {
		return domain.StoreFailure("write links", err)
	}
	for i, l := range links.Entries() {
		if _, err := o.q.ExecContext(ctx,
			`INSERT INTO persona_profiles (persona, profile, position, confirm_state) VALUES (?, ?, ?, ?)`,
			id.String(), l.Profile.String(), i, string(l.Details.ConnectionConfirmState),
		); err != nil {
			return domain.StoreFailure("write links", err)
		}
	}
	return nil
}

func (o *ops) touchPersona(ctx context.Context, id domain.PersonaIdentifier, now time.Time) error {
	if _, err := o.q.ExecContext(ctx,
		`UPDATE personas SET updated_at = ? WHERE identifier = ?`, toMillis(now), id.String(),
	); err != nil {
		return domain.StoreFailure("touch persona", err)
	}
	return nil
}

func (o *ops) insertProfile(ctx context.Context, r domain.ProfileRecord) error {
	localKey, err := jsonColumn(r.LocalKey)
	if err != nil {
		return domain.StoreFailure("encode local key", err)
	}
	if _, err := o.q.ExecContext(ctx,
		`INSERT INTO profiles (identifier, network, user_id, nickname, local_key, linked_persona, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, NULL, ?, ?)`,
		r.Identifier.String(), r.Identifier.Network, r.Identifier.UserID, r.Nickname, localKey,
		toMillis(r.CreatedAt), toMillis(r.UpdatedAt),
	); err != nil {
		return domain.StoreFailure("insert profile", err)
	}
	return nil
}

func (o *ops) collectPersonas(ctx context.Context, rows *sql.Rows) ([]domain.PersonaRecord, error) {
	var out []domain.PersonaRecord
	err := func() error {
		defer rows.Close()
		for rows.Next() {
			r, err := scanPersona(rows)
			if err != nil {
				return err
			}
			out = append(out, r)
		}
		return rows.Err()
	}()
	if err != nil {
		return nil, err
	}
	// Links are loaded after the cursor is closed; a transaction has only one
	// connection to read them with.
	for i := range out {
		links, err := o.queryLinks(ctx, out[i].Identifier)
		if err != nil {
			return nil, err
		}
		out[i].LinkedProfiles = links
	}
	return out, nil
}

func (o *ops) queryLinks(ctx context.Context, id domain.PersonaIdentifier) (domain.LinkedProfiles, error) {
	rows, err := o.q.QueryContext(ctx,
		`SELECT profile, confirm_state FROM persona_profiles WHERE persona = ? ORDER BY position`, id.String())
	if err != nil {
		return domain.LinkedProfiles{}, err
	}
	defer rows.Close()

	var entries []domain.LinkedProfile
	for rows.Next() {
		var profile, state string
		if err := rows.Scan(&profile, &state); err != nil {
			return domain.LinkedProfiles{}, err
		}
		pid, err := domain.ParseProfileIdentifier(profile)
		if err != nil {
			return domain.LinkedProfiles{}, fmt.Errorf("decode linked profile: %w", err)
		}
		entries = append(entries, domain.LinkedProfile{
			Profile: pid,
			Details: domain.LinkedProfileDetails{ConnectionConfirmState: domain.ConnectionConfirmState(state)},
		})
	}
	if err := rows.Err(); err != nil {
		return domain.LinkedProfiles{}, err
	}
	return domain.NewLinkedProfiles(entries...), nil
}

func scanPersona(rows *sql.Rows) (domain.PersonaRecord, error) {
	var (
		r                     domain.PersonaRecord
		id, pub               string
		priv, local, mnemonic sql.NullString
		hasLogout, uninit     int
		createdAt, updatedAt  int64
	)
	if err := rows.Scan(&id, &r.Nickname, &pub, &priv, &local, &mnemonic, &hasLogout, &uninit, &createdAt, &updatedAt); err != nil {
		return r, err
	}
	var err error
	if r.Identifier, err = domain.ParsePersonaIdentifier(id); err != nil {
		return r, fmt.Errorf("decode identifier: %w", err)
	}
	if err := json.Unmarshal([]byte(pub), &r.PublicKey); err != nil {
		return r, fmt.Errorf("decode public key: %w", err)
	}
	if r.PrivateKey, err = fromJSONColumn[domain.ECPrivateKey](priv, "private key"); err != nil {
		return r, err
	}
	if r.LocalKey, err = fromJSONColumn[domain.AESKey](local, "local key"); err != nil {
		return r, err
	}
	if r.Mnemonic, err = fromJSONColumn[domain.MnemonicRecord](mnemonic, "mnemonic"); err != nil {
		return r, err
	}
	r.HasLogout = hasLogout != 0
	r.Uninitialized = uninit != 0
	r.CreatedAt = fromMillis(createdAt)
	r.UpdatedAt = fromMillis(updatedAt)
	return r, nil
}

func collectProfiles(rows *sql.Rows) ([]domain.ProfileRecord, error) {
	defer rows.Close()
	var out []domain.ProfileRecord
	for rows.Next() {
		var (
			r                    domain.ProfileRecord
			id, network, userID  string
			local, linked        sql.NullString
			createdAt, updatedAt int64
		)
		if err := rows.Scan(&id, &network, &userID, &r.Nickname, &local, &linked, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		r.Identifier = domain.NewProfileIdentifier(network, userID)
		var err error
		if r.LocalKey, err = fromJSONColumn[domain.AESKey](local, "local key"); err != nil {
			return nil, err
		}
		if linked.Valid {
			pid, err := domain.ParsePersonaIdentifier(linked.String)
			if err != nil {
				return nil, fmt.Errorf("decode linked persona: %w", err)
			}
			r.LinkedPersona = &pid
		}
		r.CreatedAt = fromMillis(createdAt)
		r.UpdatedAt = fromMillis(updatedAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

// ---------- Avatars ----------

// QueryAvatar returns the cached avatar data URL for a profile.
func (s *Store) QueryAvatar(ctx context.Context, id domain.ProfileIdentifier) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	var dataURL string
	err := s.sqlDB.QueryRowContext(ctx, `SELECT data_url FROM avatars WHERE profile = ?`, id.String()).Scan(&dataURL)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, domain.StoreFailure("query avatar", err)
	}
	return dataURL, true, nil
}

// StoreAvatar upserts the avatar data URL for a profile.
func (s *Store) StoreAvatar(ctx context.Context, id domain.ProfileIdentifier, dataURL string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO avatars (profile, data_url, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(profile) DO UPDATE SET data_url = excluded.data_url, updated_at = excluded.updated_at`,
		id.String(), dataURL, toMillis(s.now()),
	); err != nil {
		return domain.StoreFailure("store avatar", err)
	}
	return nil
}

// Compile-time assertions.
var (
	_ domain.PersonaStore = (*Store)(nil)
	_ domain.PersonaTx    = (*ops)(nil)
	_ domain.AvatarCache  = (*Store)(nil)
)
