package compiler

import (
	"fmt"
	"strings"

	"github.com/dlclark/regexp2"

	"github.com/roach88/alloclower/internal/heap"
)

// regExpFlagBits are the JSRegExp flag bits by flag letter.
var regExpFlagBits = map[rune]heap.Smi{
	'g': 1 << 0,
	'i': 1 << 1,
	'm': 1 << 2,
	'y': 1 << 3,
	'u': 1 << 4,
	's': 1 << 5,
	'd': 1 << 6,
}

// regExpFlags returns the flag bits for flags. Letters may not repeat.
func regExpFlags(flags string) (heap.Smi, error) {
	var bits heap.Smi
	for _, r := range flags {
		bit, ok := regExpFlagBits[r]
		if !ok {
			return 0, fmt.Errorf("unknown flag %q", r)
		}
		if bits&bit != 0 {
			return 0, fmt.Errorf("duplicate flag %q", r)
		}
		bits |= bit
	}
	return bits, nil
}

// checkRegExp compiles source with ECMAScript syntax so that a unit cannot
// carry a boilerplate the parser would have rejected.
func checkRegExp(source, flags string) error {
	if _, err := regExpFlags(flags); err != nil {
		return err
	}
	var opts regexp2.RegexOptions = regexp2.ECMAScript
	if strings.ContainsRune(flags, 'i') {
		opts |= regexp2.IgnoreCase
	}
	if strings.ContainsRune(flags, 'm') {
		opts |= regexp2.Multiline
	}
	if _, err := regexp2.Compile(source, opts); err != nil {
		return err
	}
	return nil
}
