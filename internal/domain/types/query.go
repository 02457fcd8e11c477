package types

import (
	"slices"
	"strings"
)

// PersonaQuery filters persona listings. Zero fields match everything.
type PersonaQuery struct {
	Identifiers []PersonaIdentifier
	// NameContains matches a case-insensitive nickname substring.
	NameContains string
	// NicknameEquals matches a case-insensitive nickname exactly.
	NicknameEquals string
	HasPrivateKey  *bool
	Initialized    *bool
}

// Matches reports whether r satisfies q.
func (q PersonaQuery) Matches(r PersonaRecord) bool {
	if len(q.Identifiers) > 0 && !slices.Contains(q.Identifiers, r.Identifier) {
		return false
	}
	if q.NameContains != "" && !strings.Contains(strings.ToLower(r.Nickname), strings.ToLower(q.NameContains)) {
		return false
	}
	if q.NicknameEquals != "" && !strings.EqualFold(r.Nickname, q.NicknameEquals) {
		return false
	}
	if q.HasPrivateKey != nil && (r.PrivateKey != nil) != *q.HasPrivateKey {
		return false
	}
	if q.Initialized != nil && r.Uninitialized == *q.Initialized {
		return false
	}
	return true
}

// ProfileQuery filters profile listings. Zero fields match everything.
type ProfileQuery struct {
	Identifiers      []ProfileIdentifier
	Network          string
	NameContains     string
	HasLinkedPersona *bool
}

// Matches reports whether r satisfies q.
func (q ProfileQuery) Matches(r ProfileRecord) bool {
	if len(q.Identifiers) > 0 && !slices.Contains(q.Identifiers, r.Identifier) {
		return false
	}
	if q.Network != "" && r.Identifier.Network != q.Network {
		return false
	}
	if q.NameContains != "" && !strings.Contains(strings.ToLower(r.Nickname), strings.ToLower(q.NameContains)) {
		return false
	}
	if q.HasLinkedPersona != nil && (r.LinkedPersona != nil) != *q.HasLinkedPersona {
		return false
	}
	return true
}

// ProfilePageRequest selects one page of profiles ordered by identifier text.
type ProfilePageRequest struct {
	// After excludes every profile up to and including this identifier.
	After *ProfileIdentifier
	// UserIDContains matches a case-insensitive user id substring.
	UserIDContains string
	Network        string
	Count          int
}

// Matches reports whether r belongs in the page, ignoring Count.
func (p ProfilePageRequest) Matches(r ProfileRecord) bool {
	if p.After != nil && r.Identifier.String() <= p.After.String() {
		return false
	}
	if p.Network != "" && r.Identifier.Network != p.Network {
		return false
	}
	if p.UserIDContains != "" && !strings.Contains(strings.ToLower(r.Identifier.UserID), strings.ToLower(p.UserIDContains)) {
		return false
	}
	return true
}
