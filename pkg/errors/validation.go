package errors

import (
	"math"
	"strings"
	"unicode"
)

// ValidatePercent checks that a top-percent value lies in (0, 100].
func ValidatePercent(p float64) error {
	if math.IsNaN(p) || math.IsInf(p, 0) {
		return New(ErrCodeInvalidParameter, "top_percent must be a finite number")
	}
	if p <= 0 || p > 100 {
		return New(ErrCodeInvalidParameter, "top_percent must be in (0, 100], got %g", p)
	}
	return nil
}

// ValidateCenter checks that a colorscale center is a finite number.
func ValidateCenter(c float64) error {
	if math.IsNaN(c) || math.IsInf(c, 0) {
		return New(ErrCodeInvalidParameter, "centered_by must be a finite number")
	}
	return nil
}

// ValidateFilePath validates a matrix input path.
//
// Validation rules:
//   - Path cannot be empty
//   - Maximum length of 4096 characters
//   - No null bytes or control characters
func ValidateFilePath(path string) error {
	if strings.TrimSpace(path) == "" {
		return New(ErrCodeInvalidPath, "path cannot be empty")
	}

	const maxPathLength = 4096
	if len(path) > maxPathLength {
		return New(ErrCodeInvalidPath, "path too long (max %d characters)", maxPathLength)
	}

	for _, r := range path {
		if r == '\x00' || unicode.IsControl(r) {
			return New(ErrCodeInvalidPath, "path contains invalid characters")
		}
	}
	return nil
}

// ValidateArtifactName validates a single path element used inside the
// scratch directory. It must be a plain basename.
func ValidateArtifactName(name string) error {
	if name == "" {
		return New(ErrCodeInvalidPath, "artifact name cannot be empty")
	}
	if strings.ContainsAny(name, "/\\") {
		return New(ErrCodeInvalidPath, "artifact name cannot contain path separators")
	}
	if name == "." || name == ".." || strings.HasPrefix(name, ".") {
		return New(ErrCodeInvalidPath, "artifact name cannot be a hidden file")
	}
	return nil
}
