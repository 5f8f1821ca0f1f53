package pairing

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	targetStrip = regexp.MustCompile(`[\s\-().]+`)
	targetRe    = regexp.MustCompile(`^[0-9]{7,15}$`)
)

// NormalizeTarget converts a user-supplied phone number into the digits-only
// form the pairing-code request expects:
//   - Spaces, dashes, dots and parentheses are dropped
//   - A leading "+" is dropped
//   - The result must be 7 to 15 digits (E.164 bounds)
func NormalizeTarget(raw string) (string, error) {
	cleaned := targetStrip.ReplaceAllString(strings.TrimSpace(raw), "")
	cleaned = strings.TrimPrefix(cleaned, "+")

	if cleaned == "" {
		return "", fmt.Errorf("%w: empty target", ErrInvalidTarget)
	}
	if !targetRe.MatchString(cleaned) {
		return "", fmt.Errorf("%w: %q", ErrInvalidTarget, raw)
	}
	return cleaned, nil
}
