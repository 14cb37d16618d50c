package apdu

import "errors"

// Status words shared by the applets this module talks to.
const (
	SwOK                            uint16 = 0x9000
	SwWrongLength                   uint16 = 0x6700
	SwSecurityConditionNotSatisfied uint16 = 0x6982
	SwAuthMethodBlocked             uint16 = 0x6983
	SwConditionsNotSatisfied        uint16 = 0x6985
	SwWrongData                     uint16 = 0x6A80
	SwFileNotFound                  uint16 = 0x6A82
	SwNoSpace                       uint16 = 0x6A84
	SwIncorrectParams               uint16 = 0x6A86
	SwReferencedDataNotFound        uint16 = 0x6A88
	SwWrongP1P2                     uint16 = 0x6B00
	SwInsNotSupported               uint16 = 0x6D00
	SwClaNotSupported               uint16 = 0x6E00
)

// ErrBadRawResponse is returned when a response buffer is too short to
// carry a status word.
var ErrBadRawResponse = errors.New("apdu: response shorter than the status word")

// Response is a decoded response APDU.
type Response struct {
	Data []byte
	Sw1  uint8
	Sw2  uint8
	Sw   uint16
}

// ParseResponse parses a raw response buffer. The last two bytes form the
// status word, everything before them is data.
func ParseResponse(raw []byte) (*Response, error) {
	if len(raw) < 2 {
		return nil, ErrBadRawResponse
	}

	sw1 := raw[len(raw)-2]
	sw2 := raw[len(raw)-1]

	return &Response{
		Data: raw[:len(raw)-2],
		Sw1:  sw1,
		Sw2:  sw2,
		Sw:   uint16(sw1)<<8 | uint16(sw2),
	}, nil
}

// IsOK reports a 0x9000 status word.
func (r *Response) IsOK() bool {
	return r.Sw == SwOK
}

// HasMoreData reports whether the card advertises further response bytes
// (status 0x61XX) and how many it holds ready. Zero means at least a full
// short frame is still available.
func (r *Response) HasMoreData() (int, bool) {
	if r.Sw1 == 0x61 {
		return int(r.Sw2), true
	}
	return 0, false
}

// RemainingAttempts extracts the retry counter from a 0x63CX verification
// failure.
func (r *Response) RemainingAttempts() (int, bool) {
	return RemainingAttempts(r.Sw)
}

// RemainingAttempts extracts the retry counter carried in the low nibble
// of a 0x63CX status word.
func RemainingAttempts(sw uint16) (int, bool) {
	if sw&0xFFF0 == 0x63C0 {
		return int(sw & 0x000F), true
	}
	return 0, false
}
