package digest

import (
	"github.com/fxamacker/cbor/v2"
)

// Digests encode as CBOR byte strings so that canonical encodings are
// independent of Go's array representation.

func (d Digest) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(d[:])
}

func (d *Digest) UnmarshalCBOR(data []byte) error {
	var b []byte
	if err := cbor.Unmarshal(data, &b); err != nil {
		return err
	}

	decoded, err := FromBytes(b)
	if err != nil {
		return err
	}

	*d = decoded

	return nil
}
