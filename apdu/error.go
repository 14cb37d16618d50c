package apdu

import "fmt"

// statusMessages names the well-known failure codes. Anything missing is
// reported numerically; the raw code always stays available on the error.
var statusMessages = map[uint16]string{
	SwWrongLength:                   "wrong length",
	SwSecurityConditionNotSatisfied: "security condition not satisfied",
	SwAuthMethodBlocked:             "authentication method blocked",
	SwConditionsNotSatisfied:        "conditions of use not satisfied",
	SwWrongData:                     "incorrect command data",
	SwFileNotFound:                  "file or application not found",
	SwNoSpace:                       "not enough space",
	SwIncorrectParams:               "incorrect parameters P1-P2",
	SwReferencedDataNotFound:        "referenced data not found",
	SwWrongP1P2:                     "wrong parameters P1-P2",
	SwInsNotSupported:               "instruction not supported",
	SwClaNotSupported:               "class not supported",
}

// StatusError is a non-success status word returned by the card. The code
// is kept verbatim so callers can act on the specific failure rather than
// a generic message.
type StatusError struct {
	Sw uint16
}

// NewStatusError returns a StatusError for the given status word.
func NewStatusError(sw uint16) *StatusError {
	return &StatusError{Sw: sw}
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	if msg, ok := statusMessages[e.Sw]; ok {
		return fmt.Sprintf("apdu: %s (0x%04X)", msg, e.Sw)
	}
	if attempts, ok := RemainingAttempts(e.Sw); ok {
		return fmt.Sprintf("apdu: verification failed, %d attempts remaining (0x%04X)", attempts, e.Sw)
	}
	return fmt.Sprintf("apdu: unexpected status 0x%04X", e.Sw)
}
