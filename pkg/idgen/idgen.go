// Package idgen formats and advances the human-readable sequential identifiers
// used for consultations, receipts and payments (CON001, RCP000001, PAY001).
package idgen

import (
	"fmt"
	"strconv"
	"strings"
)

// Sequence describes one identifier family: a fixed prefix followed by a
// zero-padded decimal counter.
type Sequence struct {
	Prefix string
	Width  int
}

var (
	Consultation = Sequence{Prefix: "CON", Width: 3}
	Receipt      = Sequence{Prefix: "RCP", Width: 6}
	Payment      = Sequence{Prefix: "PAY", Width: 3}
)

// Format renders n with the sequence prefix and padding. Numbers wider than
// Width are rendered in full.
func (s Sequence) Format(n int64) string {
	return fmt.Sprintf("%s%0*d", s.Prefix, s.Width, n)
}

// Owns reports whether id carries this sequence's prefix.
func (s Sequence) Owns(id string) bool {
	return strings.HasPrefix(id, s.Prefix)
}

// Parse extracts the numeric suffix of id. ok is false when the prefix does
// not match or the suffix is not a non-negative integer.
func (s Sequence) Parse(id string) (n int64, ok bool) {
	if !s.Owns(id) {
		return 0, false
	}
	n, err := strconv.ParseInt(id[len(s.Prefix):], 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// Next returns the identifier that follows last.
//
// When last is empty numbering starts at 1. When last belongs to another
// family, existing is scanned for the highest parsable suffix of this family.
// A suffix that cannot be parsed restarts numbering at 1.
func (s Sequence) Next(last string, existing []string) string {
	return s.Format(s.NextNumber(last, existing))
}

// NextNumber is Next without formatting.
func (s Sequence) NextNumber(last string, existing []string) int64 {
	if last == "" {
		return 1
	}
	if s.Owns(last) {
		n, ok := s.Parse(last)
		if !ok {
			return 1
		}
		return n + 1
	}
	max, found := s.Max(existing)
	if !found {
		return 1
	}
	return max + 1
}

// Max returns the highest parsable suffix among ids of this family.
func (s Sequence) Max(ids []string) (int64, bool) {
	var (
		max   int64
		found bool
	)
	for _, id := range ids {
		n, ok := s.Parse(id)
		if !ok {
			continue
		}
		if !found || n > max {
			max, found = n, true
		}
	}
	return max, found
}

// Seed returns the first counter value for a family whose stored rows predate
// the counter. It follows NextNumber for last and never returns a number at or
// below the highest suffix in existing.
func (s Sequence) Seed(last string, existing []string) int64 {
	n := s.NextNumber(last, existing)
	if max, found := s.Max(existing); found && max >= n {
		n = max + 1
	}
	return n
}

// Latest returns the identifier a "longest first, then greatest" ordering puts
// on top. For same-prefix identifiers that is the highest number.
func Latest(ids []string) string {
	var last string
	for _, id := range ids {
		if len(id) > len(last) || (len(id) == len(last) && id > last) {
			last = id
		}
	}
	return last
}
