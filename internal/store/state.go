package store

import (
	"context"
	"sort"
	"time"

	"maskid/internal/domain"
)

// state is the whole persona database as one document.
type state struct {
	Personas map[string]domain.PersonaRecord `json:"personas"`
	Profiles map[string]domain.ProfileRecord `json:"profiles"`
}

func newState() *state {
	return &state{
		Personas: make(map[string]domain.PersonaRecord),
		Profiles: make(map[string]domain.ProfileRecord),
	}
}

func (s *state) clone() *state {
	out := &state{
		Personas: make(map[string]domain.PersonaRecord, len(s.Personas)),
		Profiles: make(map[string]domain.ProfileRecord, len(s.Profiles)),
	}
	for k, v := range s.Personas {
		out.Personas[k] = v.Clone()
	}
	for k, v := range s.Profiles {
		out.Profiles[k] = v.Clone()
	}
	return out
}

// ---------- Reads ----------

func (s *state) queryPersona(id domain.PersonaIdentifier) (domain.PersonaRecord, bool) {
	r, ok := s.Personas[id.String()]
	if !ok {
		return domain.PersonaRecord{}, false
	}
	return r.Clone(), true
}

func (s *state) queryPersonas(q domain.PersonaQuery) []domain.PersonaRecord {
	out := make([]domain.PersonaRecord, 0, len(s.Personas))
	for _, r := range s.Personas {
		if q.Matches(r) {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identifier.String() < out[j].Identifier.String() })
	return out
}

func (s *state) queryProfile(id domain.ProfileIdentifier) (domain.ProfileRecord, bool) {
	r, ok := s.Profiles[id.String()]
	if !ok {
		return domain.ProfileRecord{}, false
	}
	return r.Clone(), true
}

func (s *state) queryProfiles(match func(domain.ProfileRecord) bool) []domain.ProfileRecord {
	out := make([]domain.ProfileRecord, 0, len(s.Profiles))
	for _, r := range s.Profiles {
		if match(r) {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identifier.String() < out[j].Identifier.String() })
	return out
}

func (s *state) queryPersonaByProfile(id domain.ProfileIdentifier) (domain.PersonaRecord, bool) {
	p, ok := s.Profiles[id.String()]
	if !ok || p.LinkedPersona == nil {
		return domain.PersonaRecord{}, false
	}
	return s.queryPersona(*p.LinkedPersona)
}

// reader adapts a state to domain.PersonaReader.
type reader struct {
	load func() (*state, error)
}

func (r reader) QueryPersona(ctx context.Context, id domain.PersonaIdentifier) (domain.PersonaRecord, bool, error) {
	st, err := r.begin(ctx)
	if err != nil {
		return domain.PersonaRecord{}, false, err
	}
	rec, ok := st.queryPersona(id)
	return rec, ok, nil
}

func (r reader) QueryPersonas(ctx context.Context, q domain.PersonaQuery) ([]domain.PersonaRecord, error) {
	st, err := r.begin(ctx)
	if err != nil {
		return nil, err
	}
	return st.queryPersonas(q), nil
}

func (r reader) QueryPersonaByProfile(ctx context.Context, id domain.ProfileIdentifier) (domain.PersonaRecord, bool, error) {
	st, err := r.begin(ctx)
	if err != nil {
		return domain.PersonaRecord{}, false, err
	}
	rec, ok := st.queryPersonaByProfile(id)
	return rec, ok, nil
}

func (r reader) QueryProfile(ctx context.Context, id domain.ProfileIdentifier) (domain.ProfileRecord, bool, error) {
	st, err := r.begin(ctx)
	if err != nil {
		return domain.ProfileRecord{}, false, err
	}
	rec, ok := st.queryProfile(id)
	return rec, ok, nil
}

func (r reader) QueryProfiles(ctx context.Context, q domain.ProfileQuery) ([]domain.ProfileRecord, error) {
	st, err := r.begin(ctx)
	if err != nil {
		return nil, err
	}
	return st.queryProfiles(q.Matches), nil
}

func (r reader) QueryProfilesPaged(ctx context.Context, page domain.ProfilePageRequest) ([]domain.ProfileRecord, error) {
	if page.Count <= 0 {
		return nil, domain.E(domain.KindInvalidArgument, "query profiles paged", "count must be greater than zero")
	}
	st, err := r.begin(ctx)
	if err != nil {
		return nil, err
	}
	out := st.queryProfiles(page.Matches)
	if len(out) > page.Count {
		out = out[:page.Count]
	}
	return out, nil
}

func (r reader) begin(ctx context.Context) (*state, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.load()
}

// ---------- Writes ----------

// stateTx mutates a private working copy of the state.
type stateTx struct {
	reader
	st  *state
	now func() time.Time
}

func newStateTx(st *state, now func() time.Time) *stateTx {
	return &stateTx{
		reader: reader{load: func() (*state, error) { return st, nil }},
		st:     st,
		now:    now,
	}
}

func (t *stateTx) CreatePersona(ctx context.Context, r domain.PersonaRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.Identifier.IsZero() {
		return domain.E(domain.KindInvalidArgument, "create persona", "identifier is required")
	}
	key := r.Identifier.String()
	if _, exists := t.st.Personas[key]; exists {
		return domain.E(domain.KindAlreadyExists, "create persona", "persona "+key+" already exists")
	}
	t.st.Personas[key] = r.Clone()
	return nil
}

func (t *stateTx) UpdatePersona(ctx context.Context, p domain.PersonaPatch, opts domain.UpdateOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := p.Identifier.String()
	old, ok := t.st.Personas[key]
	if !ok {
		return domain.E(domain.KindNotFound, "update persona", "persona "+key+" not found")
	}
	t.st.Personas[key] = old.Apply(p, opts, t.now())
	return nil
}

func (t *stateTx) CreateOrUpdatePersona(ctx context.Context, r domain.PersonaRecord, opts domain.UpdateOptions) error {
	if _, ok := t.st.Personas[r.Identifier.String()]; ok {
		return t.UpdatePersona(ctx, domain.PatchFromRecord(r), opts)
	}
	return t.CreatePersona(ctx, r)
}

func (t *stateTx) DeletePersona(ctx context.Context, id domain.PersonaIdentifier) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := id.String()
	if _, ok := t.st.Personas[key]; !ok {
		return nil
	}
	now := t.now()
	for pk, prof := range t.st.Profiles {
		if prof.LinkedPersona != nil && *prof.LinkedPersona == id {
			prof.LinkedPersona = nil
			prof.UpdatedAt = now
			t.st.Profiles[pk] = prof
		}
	}
	delete(t.st.Personas, key)
	return nil
}

func (t *stateTx) SafeDeletePersona(ctx context.Context, id domain.PersonaIdentifier) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r, ok := t.st.Personas[id.String()]
	if !ok {
		return false, nil
	}
	if !safeToDelete(r) {
		return false, nil
	}
	return true, t.DeletePersona(ctx, id)
}

func (t *stateTx) CreateProfile(ctx context.Context, r domain.ProfileRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.Identifier.IsZero() {
		return domain.E(domain.KindInvalidArgument, "create profile", "identifier is required")
	}
	if r.LinkedPersona != nil {
		return domain.E(domain.KindInvalidArgument, "create profile", "link profiles with AttachProfile")
	}
	key := r.Identifier.String()
	if _, exists := t.st.Profiles[key]; exists {
		return domain.E(domain.KindAlreadyExists, "create profile", "profile "+key+" already exists")
	}
	t.st.Profiles[key] = r.Clone()
	return nil
}

func (t *stateTx) UpdateProfile(ctx context.Context, r domain.ProfileRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := r.Identifier.String()
	old, ok := t.st.Profiles[key]
	if !ok {
		return domain.E(domain.KindNotFound, "update profile", "profile "+key+" not found")
	}
	t.st.Profiles[key] = mergeProfile(old, r, t.now())
	return nil
}

func (t *stateTx) AttachProfile(
	ctx context.Context,
	profile domain.ProfileIdentifier,
	persona domain.PersonaIdentifier,
	details domain.LinkedProfileDetails,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := t.st.Personas[persona.String()]; !ok {
		return domain.E(domain.KindNotFound, "attach profile", "persona "+persona.String()+" not found")
	}
	now := t.now()

	prof, ok := t.st.Profiles[profile.String()]
	if !ok {
		prof = domain.ProfileRecord{Identifier: profile, CreatedAt: now, UpdatedAt: now}
	}
	if prof.LinkedPersona != nil && *prof.LinkedPersona != persona {
		if err := t.DetachProfile(ctx, profile); err != nil {
			return err
		}
		prof = t.st.Profiles[profile.String()]
	}

	rec := t.st.Personas[persona.String()].Clone()
	rec.LinkedProfiles.Set(profile, details)
	rec.UpdatedAt = now
	t.st.Personas[persona.String()] = rec

	linked := persona
	prof.LinkedPersona = &linked
	prof.UpdatedAt = now
	t.st.Profiles[profile.String()] = prof
	return nil
}

func (t *stateTx) DetachProfile(ctx context.Context, profile domain.ProfileIdentifier) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	prof, ok := t.st.Profiles[profile.String()]
	if !ok || prof.LinkedPersona == nil {
		return nil
	}
	now := t.now()
	if rec, ok := t.st.Personas[prof.LinkedPersona.String()]; ok {
		rec = rec.Clone()
		rec.LinkedProfiles.Delete(profile)
		rec.UpdatedAt = now
		t.st.Personas[rec.Identifier.String()] = rec
	}
	prof.LinkedPersona = nil
	prof.UpdatedAt = now
	t.st.Profiles[profile.String()] = prof
	return nil
}

// safeToDelete is the safe-delete policy: nothing irreplaceable may be lost.
func safeToDelete(r domain.PersonaRecord) bool {
	return r.PrivateKey == nil && r.LinkedProfiles.Len() == 0
}

// mergeProfile applies the mutable fields of next onto old. Links are owned by
// AttachProfile and DetachProfile and are never taken from next.
func mergeProfile(old, next domain.ProfileRecord, now time.Time) domain.ProfileRecord {
	out := old.Clone()
	if next.Nickname != "" {
		out.Nickname = next.Nickname
	}
	if next.LocalKey != nil {
		k := *next.LocalKey
		out.LocalKey = &k
	}
	out.UpdatedAt = now
	return out
}

// Compile-time assertion that stateTx implements domain.PersonaTx.
var _ domain.PersonaTx = (*stateTx)(nil)
