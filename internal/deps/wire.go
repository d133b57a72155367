package deps

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("deps: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// MarshalCBOR encodes the ledger's entries in canonical CBOR. Equal ledgers
// encode to equal bytes.
func (l *Ledger) MarshalCBOR() ([]byte, error) {
	return cborEncMode.Marshal(l.Entries())
}

// Decode reads entries written by MarshalCBOR.
func Decode(data []byte) ([]Entry, error) {
	var entries []Entry
	if err := cbor.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("deps: unmarshal ledger: %w", err)
	}
	return entries, nil
}
