package interfaces

import (
	"context"

	domaintypes "maskid/internal/domain/types"
)

// PersonaReader is the read side of the persona database.
//
// Point lookups report absence with ok=false, never with an error.
type PersonaReader interface {
	QueryPersona(ctx context.Context, id domaintypes.PersonaIdentifier) (domaintypes.PersonaRecord, bool, error)
	QueryPersonas(ctx context.Context, q domaintypes.PersonaQuery) ([]domaintypes.PersonaRecord, error)
	QueryPersonaByProfile(ctx context.Context, id domaintypes.ProfileIdentifier) (domaintypes.PersonaRecord, bool, error)

	QueryProfile(ctx context.Context, id domaintypes.ProfileIdentifier) (domaintypes.ProfileRecord, bool, error)
	QueryProfiles(ctx context.Context, q domaintypes.ProfileQuery) ([]domaintypes.ProfileRecord, error)
	QueryProfilesPaged(ctx context.Context, page domaintypes.ProfilePageRequest) ([]domaintypes.ProfileRecord, error)
}

// PersonaTx is the unit-of-work view handed out by WithWriteAccess.
type PersonaTx interface {
	PersonaReader

	// CreatePersona inserts r and fails if the identifier is taken.
	CreatePersona(ctx context.Context, r domaintypes.PersonaRecord) error
	// UpdatePersona applies p to an existing persona.
	UpdatePersona(ctx context.Context, p domaintypes.PersonaPatch, opts domaintypes.UpdateOptions) error
	// CreateOrUpdatePersona inserts r, or merges it into the existing record.
	CreateOrUpdatePersona(ctx context.Context, r domaintypes.PersonaRecord, opts domaintypes.UpdateOptions) error
	// DeletePersona removes the persona record even if it holds a private key.
	DeletePersona(ctx context.Context, id domaintypes.PersonaIdentifier) error
	// SafeDeletePersona removes the persona only when no key material or
	// linked profile would be lost. It reports whether the record was removed.
	SafeDeletePersona(ctx context.Context, id domaintypes.PersonaIdentifier) (bool, error)

	CreateProfile(ctx context.Context, r domaintypes.ProfileRecord) error
	UpdateProfile(ctx context.Context, r domaintypes.ProfileRecord) error

	// AttachProfile links profile to persona on both records, creating the
	// profile when missing and detaching it from any previous persona.
	AttachProfile(
		ctx context.Context,
		profile domaintypes.ProfileIdentifier,
		persona domaintypes.PersonaIdentifier,
		details domaintypes.LinkedProfileDetails,
	) error
	// DetachProfile unlinks profile from its persona on both records.
	DetachProfile(ctx context.Context, profile domaintypes.ProfileIdentifier) error
}

// PersonaStore is the transactional persona database.
type PersonaStore interface {
	PersonaReader

	// WithWriteAccess runs fn as one atomic unit. If fn returns an error
	// nothing it wrote is kept.
	WithWriteAccess(ctx context.Context, fn func(ctx context.Context, tx PersonaTx) error) error
}

// AvatarCache stores avatar images as data URLs keyed by profile.
type AvatarCache interface {
	QueryAvatar(ctx context.Context, id domaintypes.ProfileIdentifier) (string, bool, error)
	StoreAvatar(ctx context.Context, id domaintypes.ProfileIdentifier, dataURL string) error
}
