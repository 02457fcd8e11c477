package types

import "time"

// Persona is the outward view of a PersonaRecord. It never carries key material.
type Persona struct {
	Identifier     PersonaIdentifier `json:"identifier"`
	CreatedAt      time.Time         `json:"createdAt"`
	UpdatedAt      time.Time         `json:"updatedAt"`
	Nickname       string            `json:"nickname,omitempty"`
	Mnemonic       *MnemonicRecord   `json:"mnemonic,omitempty"`
	LinkedProfiles LinkedProfiles    `json:"linkedProfiles"`
	HasLogout      bool              `json:"hasLogout"`
	Uninitialized  bool              `json:"uninitialized,omitempty"`
	HasPrivateKey  bool              `json:"hasPrivateKey"`
	Fingerprint    Fingerprint       `json:"fingerprint"`
}

// Profile is the outward view of a ProfileRecord.
type Profile struct {
	Identifier    ProfileIdentifier `json:"identifier"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
	Nickname      string            `json:"nickname,omitempty"`
	LinkedPersona *Persona          `json:"linkedPersona,omitempty"`
	// Avatar is a data URL, empty when none is cached.
	Avatar string `json:"avatar,omitempty"`
}

// ImportReport summarizes a backup restore.
type ImportReport struct {
	Personas []PersonaIdentifier `json:"personas"`
	Skipped  []PersonaIdentifier `json:"skipped,omitempty"`
	Profiles int                 `json:"profiles"`
}
