package types

import (
	"encoding/json"
	"time"
)

// MnemonicParameters records how a key pair was derived from its mnemonic.
type MnemonicParameters struct {
	Path         string `json:"path"`
	WithPassword bool   `json:"withPassword"`
}

// MnemonicRecord is the recovery phrase of a persona and its derivation parameters.
type MnemonicRecord struct {
	Words      string             `json:"words"`
	Parameters MnemonicParameters `json:"parameters"`
}

// ConnectionConfirmState tracks whether a profile link has been confirmed.
type ConnectionConfirmState string

const (
	ConnectionConfirmed ConnectionConfirmState = "confirmed"
	ConnectionPending   ConnectionConfirmState = "pending"
	ConnectionDenied    ConnectionConfirmState = "denied"
)

// Valid reports whether s is a known state.
func (s ConnectionConfirmState) Valid() bool {
	switch s {
	case ConnectionConfirmed, ConnectionPending, ConnectionDenied:
		return true
	}
	return false
}

// LinkedProfileDetails is the metadata stored on a persona for each linked profile.
type LinkedProfileDetails struct {
	ConnectionConfirmState ConnectionConfirmState `json:"connectionConfirmState"`
}

// LinkedProfile is one entry of LinkedProfiles.
type LinkedProfile struct {
	Profile ProfileIdentifier    `json:"profile"`
	Details LinkedProfileDetails `json:"details"`
}

// LinkedProfiles is an insertion-ordered set of profiles keyed by identifier.
type LinkedProfiles struct {
	entries []LinkedProfile
}

// NewLinkedProfiles builds a set from entries; later duplicates overwrite earlier ones.
func NewLinkedProfiles(entries ...LinkedProfile) LinkedProfiles {
	var l LinkedProfiles
	for _, e := range entries {
		l.Set(e.Profile, e.Details)
	}
	return l
}

// Len returns the number of linked profiles.
func (l LinkedProfiles) Len() int { return len(l.entries) }

// Entries returns a copy of the entries in insertion order.
func (l LinkedProfiles) Entries() []LinkedProfile {
	return append([]LinkedProfile(nil), l.entries...)
}

// Get returns the details stored for id.
func (l LinkedProfiles) Get(id ProfileIdentifier) (LinkedProfileDetails, bool) {
	if i := l.index(id); i >= 0 {
		return l.entries[i].Details, true
	}
	return LinkedProfileDetails{}, false
}

// Has reports whether id is linked.
func (l LinkedProfiles) Has(id ProfileIdentifier) bool { return l.index(id) >= 0 }

// Set inserts or replaces the details for id, keeping its original position.
func (l *LinkedProfiles) Set(id ProfileIdentifier, d LinkedProfileDetails) {
	if i := l.index(id); i >= 0 {
		l.entries[i].Details = d
		return
	}
	l.entries = append(l.entries, LinkedProfile{Profile: id, Details: d})
}

// Delete removes id and reports whether it was present.
func (l *LinkedProfiles) Delete(id ProfileIdentifier) bool {
	i := l.index(id)
	if i < 0 {
		return false
	}
	l.entries = append(l.entries[:i:i], l.entries[i+1:]...)
	return true
}

// Clone returns an independent copy.
func (l LinkedProfiles) Clone() LinkedProfiles {
	return LinkedProfiles{entries: l.Entries()}
}

// Merge returns l with every entry of other set on top.
func (l LinkedProfiles) Merge(other LinkedProfiles) LinkedProfiles {
	out := l.Clone()
	for _, e := range other.entries {
		out.Set(e.Profile, e.Details)
	}
	return out
}

func (l LinkedProfiles) index(id ProfileIdentifier) int {
	for i, e := range l.entries {
		if e.Profile == id {
			return i
		}
	}
	return -1
}

// MarshalJSON encodes the set as an ordered array.
func (l LinkedProfiles) MarshalJSON() ([]byte, error) {
	if l.entries == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l.entries)
}

// UnmarshalJSON decodes an ordered array, collapsing duplicates.
func (l *LinkedProfiles) UnmarshalJSON(data []byte) error {
	var entries []LinkedProfile
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}
	*l = NewLinkedProfiles(entries...)
	return nil
}

// PersonaRecord is the stored form of a persona, secrets included.
type PersonaRecord struct {
	Identifier     PersonaIdentifier `json:"identifier"`
	CreatedAt      time.Time         `json:"createdAt"`
	UpdatedAt      time.Time         `json:"updatedAt"`
	PublicKey      ECPublicKey       `json:"publicKey"`
	PrivateKey     *ECPrivateKey     `json:"privateKey,omitempty"`
	LocalKey       *AESKey           `json:"localKey,omitempty"`
	Mnemonic       *MnemonicRecord   `json:"mnemonic,omitempty"`
	Nickname       string            `json:"nickname,omitempty"`
	LinkedProfiles LinkedProfiles    `json:"linkedProfiles"`
	HasLogout      bool              `json:"hasLogout"`
	Uninitialized  bool              `json:"uninitialized,omitempty"`
}

// Clone returns a deep copy of r.
func (r PersonaRecord) Clone() PersonaRecord {
	out := r
	if r.PrivateKey != nil {
		k := *r.PrivateKey
		out.PrivateKey = &k
	}
	if r.LocalKey != nil {
		k := *r.LocalKey
		out.LocalKey = &k
	}
	if r.Mnemonic != nil {
		m := *r.Mnemonic
		out.Mnemonic = &m
	}
	out.LinkedProfiles = r.LinkedProfiles.Clone()
	return out
}

// ProfileRecord is the stored form of a social-network profile.
type ProfileRecord struct {
	Identifier    ProfileIdentifier  `json:"identifier"`
	CreatedAt     time.Time          `json:"createdAt"`
	UpdatedAt     time.Time          `json:"updatedAt"`
	Nickname      string             `json:"nickname,omitempty"`
	LinkedPersona *PersonaIdentifier `json:"linkedPersona,omitempty"`
	LocalKey      *AESKey            `json:"localKey,omitempty"`
}

// Clone returns a deep copy of r.
func (r ProfileRecord) Clone() ProfileRecord {
	out := r
	if r.LinkedPersona != nil {
		p := *r.LinkedPersona
		out.LinkedPersona = &p
	}
	if r.LocalKey != nil {
		k := *r.LocalKey
		out.LocalKey = &k
	}
	return out
}
