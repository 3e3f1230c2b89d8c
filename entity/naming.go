package entity

import (
	"fmt"

	"github.com/hadronized/demo-05/errors"
)

// DeriveName resolves the canonical name for a decoded payload. Payloads
// that carry their own non-empty name win; otherwise the name falls back to
// the source stem, so assets/level.obj and assets/level.json both resolve to
// "level" and the later one replaces the earlier.
func DeriveName(src Source, payload Decoded) (string, error) {
	if sn, ok := payload.(SelfNaming); ok {
		if name := sn.EntityName(); name != "" {
			return name, nil
		}
	}

	stem := src.Stem()
	if stem == "" {
		return "", errors.WrapInvalid(
			fmt.Errorf("cannot derive name from %s", src),
			"Naming", "DeriveName", "stem check")
	}
	return stem, nil
}
