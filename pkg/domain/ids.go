package domain

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// NewID returns a fresh document id.
func NewID() string {
	return uuid.NewString()
}

// ValidateID fails with ErrInvalidArgument when id is not a well-formed
// document id.
func ValidateID(id string) error {
	if strings.TrimSpace(id) == "" {
		return InvalidArgumentf("empty id")
	}
	if _, err := uuid.Parse(id); err != nil {
		return InvalidArgumentf("malformed id %q", id)
	}
	return nil
}

// ValidateIDs validates every id in order and returns the first failure.
func ValidateIDs(ids []string) error {
	for _, id := range ids {
		if err := ValidateID(id); err != nil {
			return err
		}
	}
	return nil
}

var nucleotidePattern = regexp.MustCompile(`^[ATUCGRYKMSWBDHVN]*$`)

// ValidateNucleotides checks raw against the IUPAC nucleotide alphabet,
// ignoring case.
func ValidateNucleotides(raw string) error {
	if !nucleotidePattern.MatchString(strings.ToUpper(raw)) {
		return InvalidArgumentf("sequence contains characters outside [ATUCGRYKMSWBDHVN]")
	}
	return nil
}

// NormalizeRole upper-cases and trims a role name.
func NormalizeRole(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}
