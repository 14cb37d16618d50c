package apdu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResponse(t *testing.T) {
	resp, err := ParseResponse([]byte{0xDE, 0xAD, 0x90, 0x00})
	require.NoError(t, err)
	assert.Equal(t, []byte{0xDE, 0xAD}, resp.Data)
	assert.Equal(t, uint16(0x9000), resp.Sw)
	assert.True(t, resp.IsOK())

	resp, err = ParseResponse([]byte{0x6A, 0x82})
	require.NoError(t, err)
	assert.Empty(t, resp.Data)
	assert.Equal(t, SwFileNotFound, resp.Sw)
	assert.False(t, resp.IsOK())

	_, err = ParseResponse([]byte{0x90})
	assert.ErrorIs(t, err, ErrBadRawResponse)
}

func TestHasMoreData(t *testing.T) {
	resp := &Response{Sw1: 0x61, Sw2: 0xFF, Sw: 0x61FF}
	n, more := resp.HasMoreData()
	assert.True(t, more)
	assert.Equal(t, 255, n)

	resp = &Response{Sw1: 0x61, Sw2: 0x00, Sw: 0x6100}
	n, more = resp.HasMoreData()
	assert.True(t, more)
	assert.Equal(t, 0, n)

	resp = &Response{Sw1: 0x90, Sw2: 0x00, Sw: 0x9000}
	_, more = resp.HasMoreData()
	assert.False(t, more)
}

func TestRemainingAttempts(t *testing.T) {
	attempts, ok := RemainingAttempts(0x63C3)
	assert.True(t, ok)
	assert.Equal(t, 3, attempts)

	attempts, ok = RemainingAttempts(0x63C0)
	assert.True(t, ok)
	assert.Equal(t, 0, attempts)

	_, ok = RemainingAttempts(0x6300)
	assert.False(t, ok)
	_, ok = RemainingAttempts(0x9000)
	assert.False(t, ok)
}

func TestStatusErrorRetainsCode(t *testing.T) {
	err := NewStatusError(0x6A82)
	assert.Equal(t, uint16(0x6A82), err.Sw)
	assert.Contains(t, err.Error(), "0x6A82")

	assert.Contains(t, NewStatusError(0x63C3).Error(), "3 attempts")
	assert.Contains(t, NewStatusError(0x1234).Error(), "0x1234")
}

func TestFindTag(t *testing.T) {
	raw := []byte{
		0x79, 0x03, 0x05, 0x04, 0x03,
		0x71, 0x02, 0xAB, 0xCD,
		0x71, 0x01, 0xEF,
	}

	value, err := FindTag(raw, 0x71)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xAB, 0xCD}, value)

	value, err = FindTagN(raw, 1, 0x71)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xEF}, value)

	_, err = FindTag(raw, 0x74)
	var notFound *ErrTagNotFound
	assert.ErrorAs(t, err, &notFound)
}

func TestFindTagNested(t *testing.T) {
	raw := []byte{0xA4, 0x05, 0x8F, 0x03, 0x01, 0x02, 0x03}

	value, err := FindTag(raw, 0xA4, 0x8F)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, value)
}

func TestReadTlvTruncated(t *testing.T) {
	_, _, _, err := ReadTlv([]byte{0x71})
	assert.Error(t, err)

	_, _, _, err = ReadTlv([]byte{0x71, 0x05, 0x01})
	assert.Error(t, err)
}

func TestTlvRejectsOversizedValue(t *testing.T) {
	assert.Panics(t, func() { Tlv(0x71, make([]byte, 256)) })
}

func TestBerTlvLengthForms(t *testing.T) {
	short := BerTlv(0x70, make([]byte, 0x7F))
	assert.Equal(t, []byte{0x70, 0x7F}, short[:2])

	oneByte := BerTlv(0x70, make([]byte, 0x80))
	assert.Equal(t, []byte{0x70, 0x81, 0x80}, oneByte[:3])

	twoByte := BerTlv(0x70, make([]byte, 0x11A))
	assert.Equal(t, []byte{0x70, 0x82, 0x01, 0x1A}, twoByte[:4])

	sizes := []int{0x7F, 0x80, 0x11A}
	for i, encoded := range [][]byte{short, oneByte, twoByte} {
		tag, value, rest, err := ReadBerTlv(encoded)
		require.NoError(t, err)
		assert.Equal(t, uint8(0x70), tag)
		assert.Len(t, value, sizes[i])
		assert.Empty(t, rest)
	}
}

func TestReadBerTlvKeepsValueOpaque(t *testing.T) {
	// Tags like 0x70 carry the constructed bit but hold primitive values;
	// the value must come back verbatim, never parsed as nested records.
	der := append([]byte{0x30, 0x82, 0x01, 0x1A}, make([]byte, 0x11A)...)
	encoded := BerTlv(0x70, der)

	tag, value, rest, err := ReadBerTlv(encoded)
	require.NoError(t, err)
	assert.Equal(t, uint8(0x70), tag)
	assert.Equal(t, der, value)
	assert.Empty(t, rest)
}

func TestReadBerTlvMalformed(t *testing.T) {
	_, _, _, err := ReadBerTlv([]byte{0x70})
	assert.Error(t, err)

	_, _, _, err = ReadBerTlv([]byte{0x70, 0x81})
	assert.Error(t, err)

	_, _, _, err = ReadBerTlv([]byte{0x70, 0x82, 0x01, 0x00, 0xAA})
	assert.Error(t, err)

	// Indefinite length form is not used by any applet here.
	_, _, _, err = ReadBerTlv([]byte{0x70, 0x80, 0x00})
	assert.Error(t, err)
}
