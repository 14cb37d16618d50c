package management

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tokenkit "github.com/tokenkit/tokenkit-go"
	"github.com/tokenkit/tokenkit-go/apdu"
	"github.com/tokenkit/tokenkit-go/identifiers"
	"github.com/tokenkit/tokenkit-go/smartcard"
)

const (
	insSetDeviceConfig = uint8(0x1C)
	insGetDeviceInfo   = uint8(0x1D)

	tagUsbSupported     = uint8(0x01)
	tagSerial           = uint8(0x02)
	tagUsbEnabled       = uint8(0x03)
	tagFormFactor       = uint8(0x04)
	tagVersion          = uint8(0x05)
	tagAutoEjectTimeout = uint8(0x06)
	tagChalRespTimeout  = uint8(0x07)
	tagDeviceFlags      = uint8(0x08)
	tagConfigLocked     = uint8(0x0A)
	tagUnlock           = uint8(0x0B)
	tagReboot           = uint8(0x0C)
	tagNfcSupported     = uint8(0x0D)
	tagNfcEnabled       = uint8(0x0E)

	lockCodeLen = 16
)

// ErrBadDeviceInfo is returned when a device info page cannot be parsed.
var ErrBadDeviceInfo = errors.New("management: malformed device info")

// DeviceInfo describes a device: identity, firmware and which
// applications each transport supports and has enabled.
type DeviceInfo struct {
	Serial                   uint32
	Version                  tokenkit.Version
	FormFactor               FormFactor
	AutoEjectTimeout         uint16
	ChallengeResponseTimeout uint8
	DeviceFlags              uint8
	ConfigLocked             bool

	supported map[Transport]Capability
	enabled   map[Transport]Capability
}

// SupportedCapabilities returns the applications the transport can expose.
func (d *DeviceInfo) SupportedCapabilities(t Transport) Capability {
	return d.supported[t]
}

// EnabledCapabilities returns the applications active on the transport.
func (d *DeviceInfo) EnabledCapabilities(t Transport) Capability {
	return d.enabled[t]
}

// HasTransport reports whether the device has the transport at all.
func (d *DeviceInfo) HasTransport(t Transport) bool {
	return d.supported[t] != 0
}

// DeviceConfig is the mutable part of a device configuration. Only the
// transports present in EnabledCapabilities are written; the rest keep
// their current setting.
type DeviceConfig struct {
	EnabledCapabilities map[Transport]Capability
}

// Session gives access to the management applet of a device.
type Session struct {
	card    *smartcard.Session
	version tokenkit.Version
}

// NewSession selects the management applet over an open smart card
// session. The applet answers the select with an ASCII banner carrying
// the firmware version.
func NewSession(card *smartcard.Session) (*Session, error) {
	resp, err := card.Select(identifiers.ManagementAID)
	if err != nil {
		return nil, err
	}

	version, err := parseVersionBanner(resp.Data)
	if err != nil {
		return nil, err
	}

	return &Session{card: card, version: version}, nil
}

// Version returns the firmware version announced by the applet.
func (s *Session) Version() tokenkit.Version {
	return s.version
}

// DeviceInfo reads and parses the device info page.
func (s *Session) DeviceInfo() (*DeviceInfo, error) {
	cmd := apdu.NewCommand(0x00, insGetDeviceInfo, 0x00, 0x00, nil)
	cmd.SetLe(0)

	resp, err := s.card.SendAndReceive(cmd)
	if err != nil {
		return nil, err
	}

	return parseDeviceInfo(resp.Data)
}

// UpdateDeviceConfig writes a device configuration. currentLockCode must
// be supplied when the configuration is locked; newLockCode installs a
// new lock (or, all zero, removes it). With reboot set the device
// re-enumerates immediately so the change takes effect without a replug.
func (s *Session) UpdateDeviceConfig(config DeviceConfig, reboot bool, currentLockCode, newLockCode []byte) error {
	var body []byte
	if caps, ok := config.EnabledCapabilities[TransportUSB]; ok {
		body = append(body, apdu.Tlv(tagUsbEnabled, capabilityBytes(caps))...)
	}
	if caps, ok := config.EnabledCapabilities[TransportNFC]; ok {
		body = append(body, apdu.Tlv(tagNfcEnabled, capabilityBytes(caps))...)
	}
	if reboot {
		body = append(body, apdu.Tlv(tagReboot, nil)...)
	}
	if len(currentLockCode) > 0 {
		if len(currentLockCode) != lockCodeLen {
			return fmt.Errorf("management: lock code must be %d bytes, got %d", lockCodeLen, len(currentLockCode))
		}
		body = append(body, apdu.Tlv(tagUnlock, currentLockCode)...)
	}
	if len(newLockCode) > 0 {
		if len(newLockCode) != lockCodeLen {
			return fmt.Errorf("management: lock code must be %d bytes, got %d", lockCodeLen, len(newLockCode))
		}
		body = append(body, apdu.Tlv(tagConfigLocked, newLockCode)...)
	}

	data := append([]byte{uint8(len(body))}, body...)
	_, err := s.card.SendAndReceive(apdu.NewCommand(0x00, insSetDeviceConfig, 0x00, 0x00, data))
	return err
}

// SetLockCode protects the device configuration with a lock code. The
// current code unlocks a locked configuration first; a newLockCode of
// sixteen zero bytes removes the lock.
func (s *Session) SetLockCode(currentLockCode, newLockCode []byte) error {
	return s.UpdateDeviceConfig(DeviceConfig{}, false, currentLockCode, newLockCode)
}

// SetEnabled turns a single application on or off for one transport,
// leaving everything else as it is.
func (s *Session) SetEnabled(t Transport, app Capability, enabled bool) error {
	info, err := s.DeviceInfo()
	if err != nil {
		return err
	}

	caps := info.EnabledCapabilities(t)
	if enabled {
		caps |= app
	} else {
		caps &^= app
	}

	return s.UpdateDeviceConfig(DeviceConfig{
		EnabledCapabilities: map[Transport]Capability{t: caps},
	}, false, nil, nil)
}

// parseDeviceInfo decodes an info page: one length byte followed by that
// many bytes of TLV records. Unknown tags are skipped so newer firmware
// stays readable.
func parseDeviceInfo(page []byte) (*DeviceInfo, error) {
	if len(page) == 0 || int(page[0]) > len(page)-1 {
		return nil, ErrBadDeviceInfo
	}

	info := &DeviceInfo{
		supported: map[Transport]Capability{},
		enabled:   map[Transport]Capability{},
	}

	records := page[1 : 1+int(page[0])]
	for len(records) > 0 {
		tag, value, rest, err := apdu.ReadTlv(records)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadDeviceInfo, err)
		}
		records = rest

		switch tag {
		case tagUsbSupported:
			info.supported[TransportUSB] = parseCapability(value)
		case tagUsbEnabled:
			info.enabled[TransportUSB] = parseCapability(value)
		case tagNfcSupported:
			info.supported[TransportNFC] = parseCapability(value)
		case tagNfcEnabled:
			info.enabled[TransportNFC] = parseCapability(value)
		case tagSerial:
			if len(value) != 4 {
				return nil, ErrBadDeviceInfo
			}
			info.Serial = binary.BigEndian.Uint32(value)
		case tagVersion:
			version, err := tokenkit.ParseVersion(value)
			if err != nil {
				return nil, err
			}
			info.Version = version
		case tagFormFactor:
			if len(value) != 1 {
				return nil, ErrBadDeviceInfo
			}
			info.FormFactor = FormFactor(value[0])
		case tagAutoEjectTimeout:
			info.AutoEjectTimeout = uint16(parseCapability(value))
		case tagChalRespTimeout:
			if len(value) == 1 {
				info.ChallengeResponseTimeout = value[0]
			}
		case tagDeviceFlags:
			if len(value) == 1 {
				info.DeviceFlags = value[0]
			}
		case tagConfigLocked:
			info.ConfigLocked = len(value) == 1 && value[0] != 0
		}
	}

	return info, nil
}

// parseCapability reads a big endian capability mask of 1 or 2 bytes.
func parseCapability(value []byte) Capability {
	var c Capability
	for _, b := range value {
		c = c<<8 | Capability(b)
	}
	return c
}

func capabilityBytes(c Capability) []byte {
	return []byte{uint8(c >> 8), uint8(c)}
}

// parseVersionBanner extracts the firmware version from the select
// response, the last field of which is a dotted version string.
func parseVersionBanner(banner []byte) (tokenkit.Version, error) {
	fields := strings.Fields(string(banner))
	if len(fields) == 0 {
		return tokenkit.Version{}, fmt.Errorf("management: empty version banner")
	}

	parts := strings.Split(fields[len(fields)-1], ".")
	if len(parts) != 3 {
		return tokenkit.Version{}, fmt.Errorf("management: bad version banner %q", banner)
	}

	var numbers [3]uint8
	for i, part := range parts {
		n, err := strconv.ParseUint(part, 10, 8)
		if err != nil {
			return tokenkit.Version{}, fmt.Errorf("management: bad version banner %q", banner)
		}
		numbers[i] = uint8(n)
	}

	return tokenkit.Version{Major: numbers[0], Minor: numbers[1], Micro: numbers[2]}, nil
}
