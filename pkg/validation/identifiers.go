package validation

import (
	"fmt"
	"strings"
)

// IsValidIdentifierChar checks if a character is valid inside one segment of
// a command id or module reference (alphanumeric, hyphen, or underscore).
//
// Valid characters:
//   - Lowercase letters: a-z
//   - Uppercase letters: A-Z
//   - Digits: 0-9
//   - Hyphen: -
//   - Underscore: _
func IsValidIdentifierChar(ch rune) bool {
	return (ch >= 'a' && ch <= 'z') ||
		(ch >= 'A' && ch <= 'Z') ||
		(ch >= '0' && ch <= '9') ||
		ch == '-' || ch == '_'
}

// ValidateCommandID checks that id is one or more non-empty segments joined by
// dots, each made of identifier characters. "test.echo" and "rig_tools.mirror"
// are valid; "", ".echo", "test..echo" and "test echo" are not.
func ValidateCommandID(id string) error {
	if id == "" {
		return fmt.Errorf("command id cannot be empty")
	}
	if err := validateDotted(id); err != nil {
		return fmt.Errorf("invalid command id %q: %w", id, err)
	}
	return nil
}

// IsDottedReference reports whether ref can be read as a dotted module
// reference. At least two segments are required so that a bare word is not
// mistaken for a module.
func IsDottedReference(ref string) bool {
	if !strings.Contains(ref, ".") {
		return false
	}
	return validateDotted(ref) == nil
}

func validateDotted(s string) error {
	for i, seg := range strings.Split(s, ".") {
		if seg == "" {
			return fmt.Errorf("segment %d is empty", i)
		}
		for _, ch := range seg {
			if !IsValidIdentifierChar(ch) {
				return fmt.Errorf("segment %q contains invalid character %q", seg, ch)
			}
		}
	}
	return nil
}
