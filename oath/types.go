// Package oath manages one-time password credentials stored on the OATH
// applet of a security token.
package oath

import "fmt"

const (
	insPut           = uint8(0x01)
	insDelete        = uint8(0x02)
	insSetCode       = uint8(0x03)
	insReset         = uint8(0x04)
	insList          = uint8(0xA1)
	insCalculate     = uint8(0xA2)
	insValidate      = uint8(0xA3)
	insCalculateAll  = uint8(0xA4)
	insSendRemaining = uint8(0xA5)

	tagName              = uint8(0x71)
	tagNameList          = uint8(0x72)
	tagKey               = uint8(0x73)
	tagChallenge         = uint8(0x74)
	tagFullResponse      = uint8(0x75)
	tagTruncatedResponse = uint8(0x76)
	tagHotpResponse      = uint8(0x77)
	tagProperty          = uint8(0x78)
	tagVersion           = uint8(0x79)
	tagImf               = uint8(0x7A)
	tagTouchResponse     = uint8(0x7C)

	p1Reset             = uint8(0xDE)
	p2Reset             = uint8(0xAD)
	p2CalculateTruncate = uint8(0x01)

	propertyRequireTouch = uint8(0x02)
)

// Type is the kind of OTP a credential produces. The values double as the
// high nibble of the applet's combined type/algorithm byte.
type Type uint8

const (
	HOTP Type = 0x10
	TOTP Type = 0x20
)

func parseType(value uint8) (Type, error) {
	switch Type(value) {
	case HOTP:
		return HOTP, nil
	case TOTP:
		return TOTP, nil
	}
	return 0, fmt.Errorf("oath: not a valid credential type: 0x%02x", value)
}

// String implements the fmt.Stringer interface.
func (t Type) String() string {
	switch t {
	case HOTP:
		return "HOTP"
	case TOTP:
		return "TOTP"
	}
	return fmt.Sprintf("Type(0x%02x)", uint8(t))
}

// Algorithm is the HMAC hash a credential is keyed with. The values
// double as the low nibble of the applet's combined type/algorithm byte.
type Algorithm uint8

const (
	HmacSHA1   Algorithm = 0x01
	HmacSHA256 Algorithm = 0x02
	HmacSHA512 Algorithm = 0x03
)

func parseAlgorithm(value uint8) (Algorithm, error) {
	switch Algorithm(value) {
	case HmacSHA1, HmacSHA256, HmacSHA512:
		return Algorithm(value), nil
	}
	return 0, fmt.Errorf("oath: not a valid algorithm: 0x%02x", value)
}

// String implements the fmt.Stringer interface.
func (a Algorithm) String() string {
	switch a {
	case HmacSHA1:
		return "SHA1"
	case HmacSHA256:
		return "SHA256"
	case HmacSHA512:
		return "SHA512"
	}
	return fmt.Sprintf("Algorithm(0x%02x)", uint8(a))
}
