package profile

import (
	"fmt"
	"regexp"
)

// Profile names are used verbatim as directory names, so they may not
// contain separators or dots.
var nameRegexp = regexp.MustCompile(`^[a-z0-9_-]{1,64}$`)

// ValidateName rejects names that cannot serve as a profile directory.
func ValidateName(name string) error {
	if !nameRegexp.MatchString(name) {
		return fmt.Errorf("invalid profile name %q: use 1-64 lowercase letters, digits, '-' or '_'", name)
	}
	return nil
}
