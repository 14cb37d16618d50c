// Package identifiers holds the registered application identifiers of the
// on-device applets this module talks to.
package identifiers

// Registered application provider identifiers.
var (
	RidYubico = []byte{0xA0, 0x00, 0x00, 0x05, 0x27}
	RidNIST   = []byte{0xA0, 0x00, 0x00, 0x03, 0x08}
)

// Application identifiers, selected before a protocol session starts.
var (
	OathAID       = aid(RidYubico, 0x21, 0x01)
	OtpAID        = aid(RidYubico, 0x20, 0x01)
	ManagementAID = aid(RidYubico, 0x47, 0x11, 0x17)
	PivAID        = aid(RidNIST, 0x00, 0x00, 0x10, 0x00)
)

func aid(rid []byte, pix ...byte) []byte {
	return append(append([]byte{}, rid...), pix...)
}
