package git

import (
	"strings"

	"github.com/go-git/go-git/v5/plumbing"

	"github.com/2thetop/scalar/errors"
)

// IDLength is the length of a hex-encoded SHA-1 object id.
const IDLength = 40

// ZeroID is the all-zero object id. It never names a real object.
var ZeroID = plumbing.ZeroHash.String()

// NormalizeID trims surrounding whitespace and lowercases id.
func NormalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// ValidateID returns an INVALID_INPUT error unless id is 40 hex characters.
// Case is ignored.
func ValidateID(id string) error {
	if len(id) != IDLength || !plumbing.IsHash(id) {
		return errors.WithContext(
			errors.Newf(errors.CodeInvalidInput, "invalid object id %q", id),
			"object_id", id,
		)
	}
	return nil
}

// ValidateHexID returns an INVALID_INPUT error unless id is a non-empty run
// of hex characters. It accepts abbreviated ids, which the remote may still
// answer with a 404.
func ValidateHexID(id string) error {
	valid := id != ""
	for i := 0; valid && i < len(id); i++ {
		c := id[i]
		valid = (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
	}
	if !valid {
		return errors.WithContext(
			errors.Newf(errors.CodeInvalidInput, "invalid object id %q", id),
			"object_id", id,
		)
	}
	return nil
}

// IsZeroID reports whether id consists only of '0' characters. The empty
// string is not a zero id.
func IsZeroID(id string) bool {
	if id == "" {
		return false
	}
	return strings.Trim(id, "0") == ""
}

// looseObjectPath returns objects/xx/yyyy... for a normalized id.
func looseObjectPath(id string) string {
	return "objects/" + id[:2] + "/" + id[2:]
}
