package domain

import (
	interfaces "maskid/internal/domain/interfaces"
	types "maskid/internal/domain/types"
)

// Type aliases expose domain types from the types subpackage for compact imports.
type (
	Curve                  = types.Curve
	Identifier             = types.Identifier
	Fingerprint            = types.Fingerprint
	PersonaIdentifier      = types.PersonaIdentifier
	ProfileIdentifier      = types.ProfileIdentifier
	KeyKind                = types.KeyKind
	Key                    = types.Key
	ECPublicKey            = types.ECPublicKey
	ECPrivateKey           = types.ECPrivateKey
	AESKey                 = types.AESKey
	MnemonicParameters     = types.MnemonicParameters
	MnemonicRecord         = types.MnemonicRecord
	ConnectionConfirmState = types.ConnectionConfirmState
	LinkedProfileDetails   = types.LinkedProfileDetails
	LinkedProfile          = types.LinkedProfile
	LinkedProfiles         = types.LinkedProfiles
	PersonaRecord          = types.PersonaRecord
	ProfileRecord          = types.ProfileRecord
	PersonaPatch           = types.PersonaPatch
	UpdateOptions          = types.UpdateOptions
	PersonaQuery           = types.PersonaQuery
	ProfileQuery           = types.ProfileQuery
	ProfilePageRequest     = types.ProfilePageRequest
	Persona                = types.Persona
	Profile                = types.Profile
	PersonaKeys            = types.PersonaKeys
	ProfilePersonaKeys     = types.ProfilePersonaKeys
	DeleteMode             = types.DeleteMode
	ImportReport           = types.ImportReport
)

// Interface aliases expose domain interfaces from the interfaces subpackage.
type (
	PersonaReader  = interfaces.PersonaReader
	PersonaTx      = interfaces.PersonaTx
	PersonaStore   = interfaces.PersonaStore
	AvatarCache    = interfaces.AvatarCache
	PersonaService = interfaces.PersonaService
	BackupService  = interfaces.BackupService
)

// Constants re-exported from the types subpackage.
const (
	CurveSecp256k1        = types.CurveSecp256k1
	AlgorithmA256GCM      = types.AlgorithmA256GCM
	ConnectionConfirmed   = types.ConnectionConfirmed
	ConnectionPending     = types.ConnectionPending
	ConnectionDenied      = types.ConnectionDenied
	DeleteEvenWithPrivate = types.DeleteEvenWithPrivate
	SafeDelete            = types.SafeDelete
)

// MergeIgnore keeps existing links and ignores undefined patch fields.
var MergeIgnore = types.MergeIgnore

// Constructors re-exported from the types subpackage.
var (
	NewPersonaIdentifier   = types.NewPersonaIdentifier
	ParsePersonaIdentifier = types.ParsePersonaIdentifier
	NewProfileIdentifier   = types.NewProfileIdentifier
	ParseProfileIdentifier = types.ParseProfileIdentifier
	ParseIdentifier        = types.ParseIdentifier
	NewLinkedProfiles      = types.NewLinkedProfiles
	PatchFromRecord        = types.PatchFromRecord
)
