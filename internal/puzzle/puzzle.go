// Package puzzle holds the fixed table of puzzle identities served by the lockbox.
package puzzle

import (
	"strconv"
	"strings"
)

// Identity is one of the three puzzle roles.
type Identity string

const (
	A Identity = "A"
	B Identity = "B"
	C Identity = "C"
)

// Puzzle describes a single identity's puzzle number and client page.
type Puzzle struct {
	Identity Identity
	Number   int
	Route    string // path of the puzzle page
	Page     string // embedded page file name
	Title    string
}

// table is ordered by puzzle number.
var table = []Puzzle{
	{Identity: A, Number: 1, Route: "/sam", Page: "sam.html", Title: "Santa's Helper"},
	{Identity: B, Number: 2, Route: "/kristine", Page: "kristine.html", Title: "Elf Comm-Link"},
	{Identity: C, Number: 3, Route: "/jacob", Page: "jacob.html", Title: "SysAdmin Console"},
}

// All returns every puzzle in puzzle-number order.
func All() []Puzzle {
	return append([]Puzzle{}, table...)
}

// Count is the number of identities that must solve before the lock releases.
func Count() int {
	return len(table)
}

// ByNumber returns the puzzle with the given number.
func ByNumber(n int) (Puzzle, bool) {
	for _, p := range table {
		if p.Number == n {
			return p, true
		}
	}
	return Puzzle{}, false
}

// ByIdentity returns the puzzle for an identity.
func ByIdentity(id Identity) (Puzzle, bool) {
	for _, p := range table {
		if p.Identity == id {
			return p, true
		}
	}
	return Puzzle{}, false
}

// ParseNumber translates a raw solve parameter into an identity.
// Missing, non-numeric and out-of-range values report false.
func ParseNumber(raw string) (Identity, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return "", false
	}
	p, ok := ByNumber(n)
	if !ok {
		return "", false
	}
	return p.Identity, true
}

// Number returns the puzzle number for an identity, or 0 if unknown.
func (id Identity) Number() int {
	if p, ok := ByIdentity(id); ok {
		return p.Number
	}
	return 0
}

// Valid reports whether id is one of the defined identities.
func (id Identity) Valid() bool {
	_, ok := ByIdentity(id)
	return ok
}
