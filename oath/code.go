package oath

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Code is a one-time password calculated by the device.
type Code struct {
	Value string

	// ValidFrom and ValidUntil bound the TOTP validity window in unix
	// seconds. HOTP codes do not expire; both fields are zero for them.
	ValidFrom  int64
	ValidUntil int64
}

// parseTruncatedResponse decodes a truncated calculate response: one byte
// of digit count followed by a big endian 4 byte truncated value, as in
// RFC 4226 §5.3.
func parseTruncatedResponse(value []byte) (string, error) {
	if len(value) != 5 {
		return "", fmt.Errorf("oath: truncated response of %d bytes, want 5", len(value))
	}

	digits := int(value[0])
	if digits < 6 || digits > 8 {
		return "", fmt.Errorf("oath: unexpected digit count %d", digits)
	}

	code := binary.BigEndian.Uint32(value[1:]) & 0x7FFFFFFF
	mod := uint32(1)
	for i := 0; i < digits; i++ {
		mod *= 10
	}

	return fmt.Sprintf("%0*d", digits, code%mod), nil
}

func totpCode(value []byte, at time.Time, period int) (*Code, error) {
	formatted, err := parseTruncatedResponse(value)
	if err != nil {
		return nil, err
	}

	from := at.Unix() - at.Unix()%int64(period)
	return &Code{
		Value:      formatted,
		ValidFrom:  from,
		ValidUntil: from + int64(period),
	}, nil
}

func hotpCode(value []byte) (*Code, error) {
	formatted, err := parseTruncatedResponse(value)
	if err != nil {
		return nil, err
	}
	return &Code{Value: formatted}, nil
}

// timeChallenge encodes the number of period-sized steps since the unix
// epoch as the 8 byte big endian challenge TOTP credentials are
// calculated against.
func timeChallenge(at time.Time, period int) []byte {
	challenge := make([]byte, 8)
	binary.BigEndian.PutUint64(challenge, uint64(at.Unix()/int64(period)))
	return challenge
}
