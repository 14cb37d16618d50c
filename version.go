// Package tokenkit is an SDK for smart-card class hardware security
// tokens. The protocol packages (oath, piv, management) sit on top of the
// smartcard session, which frames ISO7816-4 APDUs over an abstract
// transport connection supplied by the caller.
package tokenkit

import (
	"errors"
	"fmt"
)

// ErrBadVersion is returned when a firmware version record cannot be
// decoded.
var ErrBadVersion = errors.New("tokenkit: malformed firmware version")

// Version is a firmware version triple as reported by the device.
type Version struct {
	Major uint8
	Minor uint8
	Micro uint8
}

// ParseVersion decodes the 3 byte version record used across applets.
func ParseVersion(data []byte) (Version, error) {
	if len(data) < 3 {
		return Version{}, ErrBadVersion
	}
	return Version{Major: data[0], Minor: data[1], Micro: data[2]}, nil
}

// IsAtLeast reports whether the version is the given one or newer.
func (v Version) IsAtLeast(major, minor, micro uint8) bool {
	if v.Major != major {
		return v.Major > major
	}
	if v.Minor != minor {
		return v.Minor > minor
	}
	return v.Micro >= micro
}

// String implements the fmt.Stringer interface.
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Micro)
}
