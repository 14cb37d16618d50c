// Package management drives the management applet used to inspect a
// device and toggle the applications it exposes on each transport.
package management

import (
	"strings"
)

// Capability is a bitmask of the applications a device can expose.
type Capability uint16

const (
	CapabilityOTP     Capability = 0x0001
	CapabilityU2F     Capability = 0x0002
	CapabilityOpenPGP Capability = 0x0008
	CapabilityPIV     Capability = 0x0010
	CapabilityOATH    Capability = 0x0020
	CapabilityHSMAuth Capability = 0x0100
	CapabilityFIDO2   Capability = 0x0200
)

var capabilityNames = []struct {
	bit  Capability
	name string
}{
	{CapabilityOTP, "OTP"},
	{CapabilityU2F, "U2F"},
	{CapabilityOpenPGP, "OpenPGP"},
	{CapabilityPIV, "PIV"},
	{CapabilityOATH, "OATH"},
	{CapabilityHSMAuth, "HSMAUTH"},
	{CapabilityFIDO2, "FIDO2"},
}

// Has reports whether every bit of other is set in c.
func (c Capability) Has(other Capability) bool {
	return c&other == other
}

// String lists the set application names, e.g. "OTP|PIV|OATH".
func (c Capability) String() string {
	var names []string
	for _, entry := range capabilityNames {
		if c.Has(entry.bit) {
			names = append(names, entry.name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}

// Transport is a physical connection type of a device.
type Transport uint8

const (
	TransportUSB Transport = iota
	TransportNFC
)

// String implements the fmt.Stringer interface.
func (t Transport) String() string {
	switch t {
	case TransportUSB:
		return "USB"
	case TransportNFC:
		return "NFC"
	}
	return "unknown"
}

// FormFactor is the physical shape of a device.
type FormFactor uint8

const (
	FormFactorUnknown       FormFactor = 0x00
	FormFactorUSBAKeychain  FormFactor = 0x01
	FormFactorUSBANano      FormFactor = 0x02
	FormFactorUSBCKeychain  FormFactor = 0x03
	FormFactorUSBCNano      FormFactor = 0x04
	FormFactorUSBCLightning FormFactor = 0x05
)

// String implements the fmt.Stringer interface.
func (f FormFactor) String() string {
	switch f {
	case FormFactorUSBAKeychain:
		return "USB-A keychain"
	case FormFactorUSBANano:
		return "USB-A nano"
	case FormFactorUSBCKeychain:
		return "USB-C keychain"
	case FormFactorUSBCNano:
		return "USB-C nano"
	case FormFactorUSBCLightning:
		return "USB-C lightning"
	}
	return "unknown"
}
