package types

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// Scope is one optional targeting dimension (channel, region, customer group).
// An unset Scope is a wildcard: it matches any requested value, including none.
type Scope struct {
	value string
	set   bool
}

// AnyScope returns the wildcard scope.
func AnyScope() Scope {
	return Scope{}
}

// ScopeOf returns a scope bound to code. Codes are trimmed and upper-cased;
// a blank code yields the wildcard.
func ScopeOf(code string) Scope {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	if normalized == "" {
		return Scope{}
	}
	return Scope{value: normalized, set: true}
}

// ScopeFromPtr maps a nullable code onto a Scope.
func ScopeFromPtr(code *string) Scope {
	if code == nil {
		return Scope{}
	}
	return ScopeOf(*code)
}

// IsWildcard reports whether the scope is unset.
func (s Scope) IsWildcard() bool {
	return !s.set
}

// Get returns the bound code and whether one is present.
func (s Scope) Get() (string, bool) {
	return s.value, s.set
}

// Ptr returns the bound code as a pointer, nil for the wildcard.
func (s Scope) Ptr() *string {
	if !s.set {
		return nil
	}
	v := s.value
	return &v
}

// Matches reports whether a rule scoped by s applies to the requested value.
// A wildcard rule matches everything; a bound rule only matches the same code.
func (s Scope) Matches(requested Scope) bool {
	if !s.set {
		return true
	}
	return requested.set && requested.value == s.value
}

func (s Scope) String() string {
	if !s.set {
		return "*"
	}
	return s.value
}

// Value implements driver.Valuer; the wildcard is stored as NULL.
func (s Scope) Value() (driver.Value, error) {
	if !s.set {
		return nil, nil
	}
	return s.value, nil
}

// Scan implements sql.Scanner.
func (s *Scope) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*s = Scope{}
	case string:
		*s = ScopeOf(v)
	case []byte:
		*s = ScopeOf(string(v))
	default:
		return fmt.Errorf("scope: unsupported scan type %T", src)
	}
	return nil
}

// MarshalJSON renders the wildcard as null.
func (s Scope) MarshalJSON() ([]byte, error) {
	if !s.set {
		return []byte("null"), nil
	}
	return json.Marshal(s.value)
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Scope) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*s = Scope{}
		return nil
	}
	var code string
	if err := json.Unmarshal(trimmed, &code); err != nil {
		return err
	}
	*s = ScopeOf(code)
	return nil
}

// ScopePatch tracks whether a scope field was explicitly present in a JSON
// patch body: absent leaves the stored scope alone, null widens it to the
// wildcard, a string narrows it.
type ScopePatch struct {
	Present bool
	Scope   Scope
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *ScopePatch) UnmarshalJSON(data []byte) error {
	var scope Scope
	if err := scope.UnmarshalJSON(data); err != nil {
		return err
	}
	p.Present = true
	p.Scope = scope
	return nil
}

// Apply returns the patched scope.
func (p ScopePatch) Apply(current Scope) Scope {
	if !p.Present {
		return current
	}
	return p.Scope
}
