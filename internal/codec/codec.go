// Package codec provides the default JSON encode/decode functions used when
// a caller does not supply Options.Encode/Options.Decode.
package codec

import "encoding/json"

// DefaultEncode JSON-encodes v. Per spec, an empty or absent encoding (which
// json.Marshal never actually produces for well-formed Go values, but some
// custom MarshalJSON implementations might) is replaced by the literal
// string "null" so that a truthy check on the stored string still sees a
// cached value.
func DefaultEncode[V any](v V) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	if len(b) == 0 {
		return "null", nil
	}
	return string(b), nil
}

// DefaultDecode JSON-decodes s into a V.
func DefaultDecode[V any](s string) (V, error) {
	var v V
	err := json.Unmarshal([]byte(s), &v)
	return v, err
}
