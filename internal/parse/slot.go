package parse

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrInvalidKey is returned for identifiers that cannot be used as a path segment.
var ErrInvalidKey = errors.New("invalid key")

const maxKeyLen = 768

// ValidKey checks that k can be used as one segment of a data store path.
func ValidKey(k string) error {
	if k == "" {
		return fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	if len(k) > maxKeyLen {
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidKey, maxKeyLen)
	}
	if strings.ContainsAny(k, ".$#[]/") {
		return fmt.Errorf("%w: %q contains one of . $ # [ ] /", ErrInvalidKey, k)
	}
	for _, r := range k {
		if r < 0x20 || r == 0x7f {
			return fmt.Errorf("%w: %q contains a control character", ErrInvalidKey, k)
		}
	}
	return nil
}

// IsNumeric reports whether id consists only of ASCII digits.
func IsNumeric(id string) bool {
	if id == "" {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < '0' || id[i] > '9' {
			return false
		}
	}
	return true
}

// SlotLess orders slot ids numerically; non-numeric ids sort after every
// numeric id, among themselves lexicographically.
func SlotLess(a, b string) bool {
	an, bn := IsNumeric(a), IsNumeric(b)
	switch {
	case an && bn:
		ta, tb := trimZeros(a), trimZeros(b)
		if len(ta) != len(tb) {
			return len(ta) < len(tb)
		}
		if ta != tb {
			return ta < tb
		}
		return a < b
	case an:
		return true
	case bn:
		return false
	}
	return a < b
}

// SortSlotIDs sorts ids in place using SlotLess.
func SortSlotIDs(ids []string) {
	sort.SliceStable(ids, func(i, j int) bool { return SlotLess(ids[i], ids[j]) })
}

func trimZeros(s string) string {
	t := strings.TrimLeft(s, "0")
	if t == "" {
		return "0"
	}
	return t
}
