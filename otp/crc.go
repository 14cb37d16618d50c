// Package otp contains helpers for the legacy Yubico OTP protocol.
//
// Responses from the OTP applet end in a CRC13239 checksum (the bit
// reversed CRC16 variant used by X.25, polynomial 0x8408, initial value
// 0xffff). Verification never extracts and compares the checksum: the CRC
// is recomputed over the whole buffer, trailer included, and must land on
// the fixed residual.
package otp

// crcOKResidual is the remainder left by CalculateCRC over a buffer that
// ends in its own valid checksum.
const crcOKResidual uint16 = 0xf0b8

// CalculateCRC computes the CRC13239 checksum over data.
func CalculateCRC(data []byte) uint16 {
	crc := uint16(0xffff)
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			j := crc & 1
			crc >>= 1
			if j == 1 {
				crc ^= 0x8408
			}
		}
	}
	return crc
}

// CheckCRC verifies a buffer ending in its 2 byte checksum.
func CheckCRC(data []byte) bool {
	return CalculateCRC(data) == crcOKResidual
}
