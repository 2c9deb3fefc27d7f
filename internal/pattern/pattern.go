// Package pattern matches stream group/name patterns.
//
// A pattern is a plain string in which "*" matches any run of characters
// (including none and including "/") and "?" matches exactly one
// character. A pattern without wildcards only matches itself:
//
//	Match("foo", "foo")               // true
//	Match("foo*", "foobar")           // true
//	Match("foo*", "what is foo")      // false
//	Match("*wh*is*foo*", "what is foo") // true
package pattern

import (
	"strings"

	"github.com/tidwall/match"
)

// Wildcard characters recognised in patterns.
const (
	WildcardAny    = "*"
	WildcardSingle = "?"
)

// HasWildcards reports whether s contains a wildcard character.
func HasWildcards(s string) bool {
	return strings.ContainsAny(s, WildcardAny+WildcardSingle)
}

// Match reports whether str matches pattern.
func Match(pattern, str string) bool {
	if !HasWildcards(pattern) {
		return pattern == str
	}
	return match.Match(str, pattern)
}

// Key names a stream by its group and data name.
type Key struct {
	Group string
	Name  string
}

// String returns group/name.
func (k Key) String() string {
	return k.Group + "/" + k.Name
}

// Pattern is a group/name pair in which either half may contain wildcards.
type Pattern struct {
	Group string
	Name  string
}

// Of builds a Pattern from a group and name.
func Of(group, name string) Pattern {
	return Pattern{Group: group, Name: name}
}

// String returns group/name.
func (p Pattern) String() string {
	return p.Group + "/" + p.Name
}

// IsWildcard reports whether either half contains a wildcard.
func (p Pattern) IsWildcard() bool {
	return HasWildcards(p.Group) || HasWildcards(p.Name)
}

// Key returns the pattern as an exact key. Only meaningful when
// IsWildcard is false.
func (p Pattern) Key() Key {
	return Key{Group: p.Group, Name: p.Name}
}

// Matches reports whether the stream key satisfies the pattern.
func (p Pattern) Matches(k Key) bool {
	return Match(p.Group, k.Group) && Match(p.Name, k.Name)
}

// Covers reports whether p matches another pattern's literal text. It is
// used when an unregister request has to select parked registrations that
// may themselves contain wildcards.
func (p Pattern) Covers(other Pattern) bool {
	return Match(p.Group, other.Group) && Match(p.Name, other.Name)
}
