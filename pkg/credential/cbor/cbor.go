// Package cbor provides the deterministic binary encoding machinery
// shared by MDOC attestations: canonical CBOR, tag-24 "encoded CBOR
// data item" wrapping, and the required-value discriminator type.
//
// Grounded on the canonical-CBOR configuration of dc4eu-vc's
// pkg/mdoc/cbor.go; generalized with a generic TaggedBytes[T] so any
// attestation namespace (not just mDL-specific items) gets tag-24
// wrapping with exact-tag deserialization, per spec §4.1.
package cbor

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Tag numbers used throughout the core, per RFC 8949 / ISO 18013-5.
const (
	TagEncodedCBOR = 24
	TagDateTime    = 0
	TagFullDate    = 1004
)

// Errors returned by this package. Callers branch on these rather than
// on error strings.
var (
	ErrSerialization   = fmt.Errorf("cbor: serialization failed")
	ErrDeserialization = fmt.Errorf("cbor: deserialization failed")
	ErrUnexpectedTag   = fmt.Errorf("cbor: unexpected tag")
	ErrRequiredValue   = fmt.Errorf("cbor: required value mismatch")
)

// Encoder wraps an EncMode/DecMode pair configured for canonical,
// deterministic CBOR per RFC 8949 §4.2.1 (the wire form mandated by
// ISO 18013-5 for MSO/IssuerSignedItem digesting).
type Encoder struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

// New creates an Encoder configured for canonical CBOR.
func New() (*Encoder, error) {
	encOpts := cbor.EncOptions{
		Sort:        cbor.SortCanonical,
		IndefLength: cbor.IndefLengthForbidden,
		TimeTag:     cbor.EncTagRequired,
	}
	encMode, err := encOpts.EncMode()
	if err != nil {
		return nil, fmt.Errorf("%w: building encode mode: %v", ErrSerialization, err)
	}

	decOpts := cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyEnforcedAPF,
		IndefLength: cbor.IndefLengthAllowed,
	}
	decMode, err := decOpts.DecMode()
	if err != nil {
		return nil, fmt.Errorf("%w: building decode mode: %v", ErrDeserialization, err)
	}

	return &Encoder{enc: encMode, dec: decMode}, nil
}

// Marshal encodes v to canonical CBOR.
func (e *Encoder) Marshal(v any) ([]byte, error) {
	b, err := e.enc.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	return b, nil
}

// Unmarshal decodes CBOR bytes into v.
func (e *Encoder) Unmarshal(data []byte, v any) error {
	if err := e.dec.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrDeserialization, err)
	}
	return nil
}

// TaggedBytes wraps a CBOR-encoded T under tag 24 ("encoded CBOR data
// item"). Deserialization requires the exact tag 24 and fails
// otherwise, per §4.1's "Deserialisation requires the exact tag".
type TaggedBytes[T any] struct {
	Raw []byte // canonical CBOR encoding of the wrapped T
}

// WrapTagged canonically encodes v and wraps it as tag-24 bytes.
func WrapTagged[T any](enc *Encoder, v T) (TaggedBytes[T], error) {
	raw, err := enc.Marshal(v)
	if err != nil {
		return TaggedBytes[T]{}, err
	}
	return TaggedBytes[T]{Raw: raw}, nil
}

// Unwrap decodes the wrapped value.
func (t TaggedBytes[T]) Unwrap(enc *Encoder) (T, error) {
	var v T
	err := enc.Unmarshal(t.Raw, &v)
	return v, err
}

// MarshalCBOR implements cbor.Marshaler, emitting tag 24 over Raw.
func (t TaggedBytes[T]) MarshalCBOR() ([]byte, error) {
	b, err := cbor.Marshal(cbor.Tag{Number: TagEncodedCBOR, Content: []byte(t.Raw)})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	return b, nil
}

// UnmarshalCBOR implements cbor.Unmarshaler, requiring tag 24 exactly.
func (t *TaggedBytes[T]) UnmarshalCBOR(data []byte) error {
	var tag cbor.Tag
	if err := cbor.Unmarshal(data, &tag); err != nil {
		return fmt.Errorf("%w: %v", ErrDeserialization, err)
	}
	if tag.Number != TagEncodedCBOR {
		return fmt.Errorf("%w: expected tag %d, got %d", ErrUnexpectedTag, TagEncodedCBOR, tag.Number)
	}
	content, ok := tag.Content.([]byte)
	if !ok {
		return fmt.Errorf("%w: tag 24 content must be a byte string", ErrDeserialization)
	}
	t.Raw = content
	return nil
}

// RequiredValue is a type parameterised by a compile-time literal tag.
// Serialisation always emits that literal; deserialisation rejects any
// other value. Used for message discriminators such
// "DeviceAuthentication" / "ReaderAuthentication" and version strings.
type RequiredValue[L Literal] struct{}

// Literal is implemented by the marker types passed to RequiredValue.
type Literal interface {
	Value() string
}

// Value returns the literal string this RequiredValue represents.
func (RequiredValue[L]) Value() string {
	var l L
	return l.Value()
}

// MarshalCBOR always emits the literal's value.
func (r RequiredValue[L]) MarshalCBOR() ([]byte, error) {
	b, err := cbor.Marshal(r.Value())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	return b, nil
}

// UnmarshalCBOR rejects any value other than the literal.
func (r *RequiredValue[L]) UnmarshalCBOR(data []byte) error {
	var s string
	if err := cbor.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: %v", ErrDeserialization, err)
	}
	if s != r.Value() {
		return fmt.Errorf("%w: expected %q, got %q", ErrRequiredValue, r.Value(), s)
	}
	return nil
}
