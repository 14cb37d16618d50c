package oath

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultPeriod is the TOTP validity window (in seconds) the id format
// leaves implicit.
const DefaultPeriod = 30

// FormatID builds the credential id stored on the device:
//
//	[period "/"] [issuer ":"] name
//
// Devices display raw ids, so the format favors readability over a fixed
// binary layout. The period prefix is only present for TOTP credentials
// with a non-default period; HOTP ids never carry one.
func FormatID(issuer, name string, typ Type, period int) []byte {
	var b strings.Builder
	if typ == TOTP && period != DefaultPeriod {
		fmt.Fprintf(&b, "%d/", period)
	}
	if issuer != "" {
		b.WriteString(issuer)
		b.WriteByte(':')
	}
	b.WriteString(name)
	return []byte(b.String())
}

// ParseID recovers issuer, name and period from a credential id. A
// leading run of digits up to the first "/" is the period (TOTP only);
// everything before the first ":" is the issuer, absent when there is no
// colon. The period of an HOTP credential is reported as 0.
//
// A name legitimately containing ":" ahead of the issuer separator is
// ambiguous. The format has no escaping, so such ids parse the same way
// the device displays them: first colon wins.
func ParseID(id []byte, typ Type) (issuer, name string, period int) {
	data := string(id)

	if typ == TOTP {
		period = DefaultPeriod
		if idx := strings.IndexByte(data, '/'); idx > 0 && isDigits(data[:idx]) {
			if p, err := strconv.Atoi(data[:idx]); err == nil {
				period = p
				data = data[idx+1:]
			}
		}
	}

	if idx := strings.IndexByte(data, ':'); idx > 0 {
		issuer = data[:idx]
		data = data[idx+1:]
	}

	return issuer, data, period
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
