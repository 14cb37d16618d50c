package otp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// appendCRC appends the transmitted form of the checksum: the ones'
// complement of the CRC, little endian, as the OTP applet emits it.
func appendCRC(data []byte) []byte {
	crc := ^CalculateCRC(data)
	return append(append([]byte{}, data...), byte(crc), byte(crc>>8))
}

func TestCalculateCRCEmpty(t *testing.T) {
	assert.Equal(t, uint16(0xffff), CalculateCRC(nil))
}

func TestCheckCRCRoundTrip(t *testing.T) {
	buffers := [][]byte{
		{},
		{0x00},
		{0x55, 0xaa, 0x00, 0xff},
		{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e},
	}

	for _, b := range buffers {
		assert.True(t, CheckCRC(appendCRC(b)), "buffer %x", b)
	}
}

func TestCheckCRCSingleBitCorruption(t *testing.T) {
	msg := appendCRC([]byte{0x87, 0x92, 0xeb, 0xfe, 0x26, 0xcc, 0x13, 0x00, 0x30, 0xc2, 0x00, 0x11, 0xc8, 0x9f})
	require.True(t, CheckCRC(msg))

	for i := range msg {
		for bit := uint(0); bit < 8; bit++ {
			corrupted := append([]byte{}, msg...)
			corrupted[i] ^= 1 << bit
			assert.False(t, CheckCRC(corrupted), "flipping bit %d of byte %d went undetected", bit, i)
		}
	}
}
