package fl

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/golang/snappy"
)

var _ Codec = (*CBORCodec)(nil)

// CBORCodec encodes parameters as a CBOR array of float arrays,
// optionally snappy-compressed.
type CBORCodec struct {
	compress bool
}

func NewCBORCodec(compress bool) *CBORCodec {
	return &CBORCodec{compress: compress}
}

func (c *CBORCodec) Encode(p Params) ([]byte, error) {
	data, err := cbor.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode params: %w", err)
	}
	if c.compress {
		return snappy.Encode(nil, data), nil
	}

	return data, nil
}

func (c *CBORCodec) Decode(data []byte) (Params, error) {
	if len(data) == 0 {
		return nil, ErrEmptyPayload
	}

	if c.compress {
		raw, err := snappy.Decode(nil, data)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress params: %w", err)
		}
		data = raw
	}

	var p Params
	if err := cbor.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to decode params: %w", err)
	}
	if len(p) == 0 {
		return nil, ErrEmptyPayload
	}

	return p, nil
}

// SameShape reports whether a and b have identical tensor layouts.
func SameShape(a, b Params) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if len(a[i]) != len(b[i]) {
			return false
		}
	}

	return true
}
