package interfaces

import (
	"context"

	domaintypes "maskid/internal/domain/types"
)

// PersonaService is the query and mutation surface of the identity layer.
type PersonaService interface {
	QueryProfile(ctx context.Context, id domaintypes.ProfileIdentifier) (domaintypes.Profile, error)
	QueryPersona(ctx context.Context, id domaintypes.PersonaIdentifier) (domaintypes.Persona, error)
	QueryProfilesWithQuery(ctx context.Context, q domaintypes.ProfileQuery) ([]domaintypes.Profile, error)
	QueryProfilesPaged(ctx context.Context, page domaintypes.ProfilePageRequest) ([]domaintypes.Profile, error)
	QueryPersonasWithQuery(ctx context.Context, q domaintypes.PersonaQuery) ([]domaintypes.Persona, error)
	QueryPersonaByProfile(ctx context.Context, id domaintypes.ProfileIdentifier) (*domaintypes.Persona, error)
	QueryLocalKey(ctx context.Context, id domaintypes.Identifier) (*domaintypes.AESKey, error)
	QueryPublicKey(ctx context.Context, id domaintypes.Identifier) (*domaintypes.ECPublicKey, error)
	QueryPrivateKey(ctx context.Context, id domaintypes.Identifier) (*domaintypes.ECPrivateKey, error)

	CreatePersonaByMnemonic(ctx context.Context, nickname, password string) (domaintypes.PersonaIdentifier, error)
	CreatePersonaByMnemonicV2(ctx context.Context, words, nickname, password string) (domaintypes.PersonaIdentifier, error)
	CreatePersonaByJSONWebKey(ctx context.Context, keys domaintypes.PersonaKeys) (domaintypes.PersonaIdentifier, error)
	CreateProfileWithPersona(
		ctx context.Context,
		profile domaintypes.ProfileIdentifier,
		details domaintypes.LinkedProfileDetails,
		keys domaintypes.ProfilePersonaKeys,
	) error
	DetachProfile(ctx context.Context, profile domaintypes.ProfileIdentifier) error
	DeletePersona(ctx context.Context, id domaintypes.PersonaIdentifier, mode domaintypes.DeleteMode) error
	LoginPersona(ctx context.Context, id domaintypes.PersonaIdentifier) error
	LogoutPersona(ctx context.Context, id domaintypes.PersonaIdentifier) error
	RenamePersona(ctx context.Context, id domaintypes.PersonaIdentifier, nickname string) error
	SetupPersona(ctx context.Context, id domaintypes.PersonaIdentifier) error
	SetProfileAvatar(ctx context.Context, id domaintypes.ProfileIdentifier, dataURL string) error
}

// BackupService exports and restores personas as a passphrase-sealed blob.
type BackupService interface {
	Export(ctx context.Context, passphrase string) ([]byte, error)
	Import(ctx context.Context, passphrase string, blob []byte) (domaintypes.ImportReport, error)
}
