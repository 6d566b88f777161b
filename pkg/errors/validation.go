package errors

import (
	"strings"
	"unicode"
)

// ValidateModuleName validates an npm package name before it is passed to
// the toolchain or used to build filesystem paths.
// It rejects names that could be used for path traversal or injection.
//
// The validation rules are intentionally conservative:
//   - No empty names
//   - No uppercase letters (npm names are lowercase)
//   - No control characters or null bytes
//   - No path traversal sequences (.., //, backslash)
//   - At most one scope separator, and only in "@scope/name" position
//   - Maximum length of 214 characters (npm's own limit)
func ValidateModuleName(name string) error {
	if name == "" {
		return New(ErrCodeInvalidModule, "module name cannot be empty")
	}

	if len(name) > 214 {
		return New(ErrCodeInvalidModule, "module name too long (max 214 characters)")
	}

	for _, r := range name {
		if unicode.IsControl(r) {
			return New(ErrCodeInvalidModule, "module name contains control characters")
		}
		if unicode.IsUpper(r) {
			return New(ErrCodeInvalidModule, "module name must be lowercase: %q", name)
		}
	}

	dangerous := []string{
		"..",   // Parent directory
		"//",   // Double slash
		"\x00", // Null byte
		"\\",   // Backslash (Windows path)
	}
	for _, pattern := range dangerous {
		if strings.Contains(name, pattern) {
			return New(ErrCodeInvalidModule, "module name contains invalid sequence: %q", pattern)
		}
	}

	// A slash is only allowed as the scope separator of "@scope/name".
	if i := strings.IndexByte(name, '/'); i != -1 {
		if !strings.HasPrefix(name, "@") || i < 2 || strings.Count(name, "/") != 1 || i == len(name)-1 {
			return New(ErrCodeInvalidModule, "invalid scoped module name: %q", name)
		}
	} else if strings.HasPrefix(name, "@") {
		return New(ErrCodeInvalidModule, "scoped module name missing package part: %q", name)
	}

	if strings.HasPrefix(name, ".") {
		return New(ErrCodeInvalidModule, "module name cannot start with a dot: %q", name)
	}

	return nil
}

// ValidateVersion validates a version string read from package metadata.
// It only checks that the string is non-empty and free of characters that
// would break an "name@version" install specifier; full semver parsing is
// left to npm itself.
func ValidateVersion(version string) error {
	if version == "" {
		return New(ErrCodeDetection, "version cannot be empty")
	}
	for _, r := range version {
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			return New(ErrCodeDetection, "version contains invalid characters: %q", version)
		}
	}
	if strings.ContainsAny(version, "@/\\") {
		return New(ErrCodeDetection, "version contains invalid characters: %q", version)
	}
	return nil
}
