package types

import "time"

// LinkedProfilesMode selects how a patch combines linked profiles.
type LinkedProfilesMode uint8

const (
	// LinkedProfilesMerge keeps existing links and adds the patch's links.
	LinkedProfilesMerge LinkedProfilesMode = iota
	// LinkedProfilesReplace discards existing links.
	LinkedProfilesReplace
)

// UndefinedMode selects what a nil patch field means.
type UndefinedMode uint8

const (
	// UndefinedIgnore leaves the stored value untouched.
	UndefinedIgnore UndefinedMode = iota
	// UndefinedDelete clears optional stored values.
	UndefinedDelete
)

// UpdateOptions controls PersonaRecord.Apply.
type UpdateOptions struct {
	LinkedProfiles LinkedProfilesMode
	Undefined      UndefinedMode
}

// MergeIgnore is the update policy every persona mutation uses.
var MergeIgnore = UpdateOptions{LinkedProfiles: LinkedProfilesMerge, Undefined: UndefinedIgnore}

// PersonaPatch is a partial PersonaRecord. Nil fields are undefined.
type PersonaPatch struct {
	Identifier     PersonaIdentifier
	PublicKey      *ECPublicKey
	PrivateKey     *ECPrivateKey
	LocalKey       *AESKey
	Mnemonic       *MnemonicRecord
	Nickname       *string
	LinkedProfiles *LinkedProfiles
	HasLogout      *bool
	Uninitialized  *bool
}

// PatchFromRecord returns a patch that defines every field of r, except
// Uninitialized when it is false.
func PatchFromRecord(r PersonaRecord) PersonaPatch {
	r = r.Clone()
	p := PersonaPatch{
		Identifier:     r.Identifier,
		PublicKey:      &r.PublicKey,
		PrivateKey:     r.PrivateKey,
		LocalKey:       r.LocalKey,
		Mnemonic:       r.Mnemonic,
		LinkedProfiles: &r.LinkedProfiles,
		HasLogout:      &r.HasLogout,
	}
	if r.Nickname != "" {
		p.Nickname = &r.Nickname
	}
	if r.Uninitialized {
		p.Uninitialized = &r.Uninitialized
	}
	return p
}

// Apply returns r updated by p under opts, stamped with now.
func (r PersonaRecord) Apply(p PersonaPatch, opts UpdateOptions, now time.Time) PersonaRecord {
	out := r.Clone()
	del := opts.Undefined == UndefinedDelete

	if p.PublicKey != nil {
		out.PublicKey = *p.PublicKey
	}
	switch {
	case p.PrivateKey != nil:
		k := *p.PrivateKey
		out.PrivateKey = &k
	case del:
		out.PrivateKey = nil
	}
	switch {
	case p.LocalKey != nil:
		k := *p.LocalKey
		out.LocalKey = &k
	case del:
		out.LocalKey = nil
	}
	switch {
	case p.Mnemonic != nil:
		m := *p.Mnemonic
		out.Mnemonic = &m
	case del:
		out.Mnemonic = nil
	}
	switch {
	case p.Nickname != nil:
		out.Nickname = *p.Nickname
	case del:
		out.Nickname = ""
	}
	if p.LinkedProfiles != nil {
		if opts.LinkedProfiles == LinkedProfilesReplace {
			out.LinkedProfiles = p.LinkedProfiles.Clone()
		} else {
			out.LinkedProfiles = out.LinkedProfiles.Merge(*p.LinkedProfiles)
		}
	}
	if p.HasLogout != nil {
		out.HasLogout = *p.HasLogout
	}
	switch {
	case p.Uninitialized != nil:
		out.Uninitialized = *p.Uninitialized
	case del:
		out.Uninitialized = false
	}
	out.UpdatedAt = now
	return out
}
