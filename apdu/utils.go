package apdu

import "fmt"

// Simple TLV helpers for the one byte tag, one byte length records used in
// OATH applet requests and responses.

// ErrTagNotFound is returned when a tag is missing from a TLV sequence.
type ErrTagNotFound struct {
	tag uint8
}

// Error implements the error interface.
func (e *ErrTagNotFound) Error() string {
	return fmt.Sprintf("tag %x not found", e.tag)
}

// Tlv encodes one record. It panics when the value exceeds the single
// length byte; the protocols using this encoding cap their fields well
// below that.
func Tlv(tag uint8, value []byte) []byte {
	if len(value) > 0xFF {
		panic(fmt.Sprintf("apdu: TLV value of %d bytes exceeds a single length byte", len(value)))
	}
	out := make([]byte, 0, 2+len(value))
	out = append(out, tag, uint8(len(value)))
	return append(out, value...)
}

// ReadTlv splits the first record off raw, returning its tag and value
// together with the unread remainder.
func ReadTlv(raw []byte) (tag uint8, value []byte, rest []byte, err error) {
	if len(raw) < 2 {
		return 0, nil, nil, fmt.Errorf("apdu: truncated TLV header (%d bytes left)", len(raw))
	}

	length := int(raw[1])
	if len(raw) < 2+length {
		return 0, nil, nil, fmt.Errorf("apdu: TLV value truncated, tag %x needs %d bytes, %d left", raw[0], length, len(raw)-2)
	}

	return raw[0], raw[2 : 2+length], raw[2+length:], nil
}

// FindTag returns the value of the first occurrence of a tag within a TLV
// sequence. Multiple tags describe a path through nested records.
func FindTag(raw []byte, tags ...uint8) ([]byte, error) {
	return findTag(raw, 0, tags...)
}

// FindTagN behaves like FindTag but returns the n-th occurrence of the
// final tag in the path.
func FindTagN(raw []byte, n int, tags ...uint8) ([]byte, error) {
	return findTag(raw, n, tags...)
}

// BER-TLV helpers for the single byte tag, definite length records used
// in PIV data objects. Tags are opaque here: PIV stores primitive values
// under tags carrying the constructed bit (0x53, 0x70), so recursing by
// tag class would descend into certificate DER. Values are never
// recursed into.

// BerTlv encodes one record, choosing short or long form for the length
// as needed. It panics when the value exceeds two length bytes.
func BerTlv(tag uint8, value []byte) []byte {
	n := len(value)
	if n > 0xFFFF {
		panic(fmt.Sprintf("apdu: BER-TLV value of %d bytes exceeds two length bytes", n))
	}

	out := make([]byte, 0, 4+n)
	out = append(out, tag)
	switch {
	case n < 0x80:
		out = append(out, uint8(n))
	case n <= 0xFF:
		out = append(out, 0x81, uint8(n))
	default:
		out = append(out, 0x82, uint8(n>>8), uint8(n))
	}
	return append(out, value...)
}

// ReadBerTlv splits the first BER-TLV record off raw, returning its tag
// and value together with the unread remainder.
func ReadBerTlv(raw []byte) (tag uint8, value []byte, rest []byte, err error) {
	if len(raw) < 2 {
		return 0, nil, nil, fmt.Errorf("apdu: truncated BER-TLV header (%d bytes left)", len(raw))
	}

	tag = raw[0]
	length := int(raw[1])
	offset := 2
	switch {
	case length == 0x81:
		if len(raw) < 3 {
			return 0, nil, nil, fmt.Errorf("apdu: truncated BER-TLV length, tag %x", tag)
		}
		length = int(raw[2])
		offset = 3
	case length == 0x82:
		if len(raw) < 4 {
			return 0, nil, nil, fmt.Errorf("apdu: truncated BER-TLV length, tag %x", tag)
		}
		length = int(raw[2])<<8 | int(raw[3])
		offset = 4
	case length >= 0x80:
		return 0, nil, nil, fmt.Errorf("apdu: unsupported BER-TLV length form %x, tag %x", length, tag)
	}

	if len(raw) < offset+length {
		return 0, nil, nil, fmt.Errorf("apdu: BER-TLV value truncated, tag %x needs %d bytes, %d left", tag, length, len(raw)-offset)
	}

	return tag, raw[offset : offset+length], raw[offset+length:], nil
}

func findTag(raw []byte, occurrence int, tags ...uint8) ([]byte, error) {
	if len(tags) == 0 {
		return raw, nil
	}

	target := tags[0]
	for len(raw) > 0 {
		tag, value, rest, err := ReadTlv(raw)
		if err != nil {
			return nil, err
		}
		raw = rest

		if tag != target {
			continue
		}

		if len(tags) > 1 {
			return findTag(value, occurrence, tags[1:]...)
		}
		if occurrence > 0 {
			occurrence--
			continue
		}
		return value, nil
	}

	return nil, &ErrTagNotFound{target}
}
