package management

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokenkit/tokenkit-go/apdu"
	"github.com/tokenkit/tokenkit-go/smartcard"
)

// scriptedConn answers each transmitted command with the next handler.
type scriptedConn struct {
	t        *testing.T
	handlers []func(cmd []byte) []byte
}

func (c *scriptedConn) Transmit(cmd []byte) ([]byte, error) {
	require.NotEmpty(c.t, c.handlers, "unexpected command %X", cmd)
	h := c.handlers[0]
	c.handlers = c.handlers[1:]
	return h(cmd), nil
}

func (c *scriptedConn) Close() error { return nil }

// commandData extracts the data field of a short form command APDU.
func commandData(t *testing.T, cmd []byte) []byte {
	require.GreaterOrEqual(t, len(cmd), 5)
	lc := int(cmd[4])
	require.GreaterOrEqual(t, len(cmd), 5+lc)
	return cmd[5 : 5+lc]
}

func respond(data []byte, sw uint16) []byte {
	return append(data, byte(sw>>8), byte(sw))
}

func newTestSession(t *testing.T, handlers ...func(cmd []byte) []byte) (*Session, *scriptedConn) {
	conn := &scriptedConn{t: t}
	conn.handlers = append([]func(cmd []byte) []byte{
		func(cmd []byte) []byte {
			assert.Equal(t, uint8(0xA4), cmd[1], "first command must be a select")
			return respond([]byte("Firmware version 5.4.3"), apdu.SwOK)
		},
	}, handlers...)

	s, err := NewSession(smartcard.NewSession(conn))
	require.NoError(t, err)
	return s, conn
}

// infoPage builds a device info page: a length byte followed by records.
func infoPage(records ...[]byte) []byte {
	var body []byte
	for _, r := range records {
		body = append(body, r...)
	}
	return append([]byte{uint8(len(body))}, body...)
}

func TestNewSession(t *testing.T) {
	s, _ := newTestSession(t)
	assert.Equal(t, "5.4.3", s.Version().String())
}

func TestNewSessionBareVersionBanner(t *testing.T) {
	conn := &scriptedConn{t: t, handlers: []func(cmd []byte) []byte{
		func(cmd []byte) []byte { return respond([]byte("5.1.2"), apdu.SwOK) },
	}}

	s, err := NewSession(smartcard.NewSession(conn))
	require.NoError(t, err)
	assert.Equal(t, "5.1.2", s.Version().String())
}

func TestNewSessionBadBanner(t *testing.T) {
	conn := &scriptedConn{t: t, handlers: []func(cmd []byte) []byte{
		func(cmd []byte) []byte { return respond([]byte("hello"), apdu.SwOK) },
	}}

	_, err := NewSession(smartcard.NewSession(conn))
	assert.Error(t, err)
}

func TestDeviceInfo(t *testing.T) {
	page := infoPage(
		apdu.Tlv(tagUsbSupported, []byte{0x03, 0x3B}),
		apdu.Tlv(tagSerial, []byte{0x00, 0x9B, 0x7E, 0x15}),
		apdu.Tlv(tagUsbEnabled, []byte{0x00, 0x31}),
		apdu.Tlv(tagFormFactor, []byte{0x01}),
		apdu.Tlv(tagVersion, []byte{5, 4, 3}),
		apdu.Tlv(tagConfigLocked, []byte{0x00}),
		apdu.Tlv(0x7F, []byte{0xDE, 0xAD}), // unknown, must be skipped
		apdu.Tlv(tagNfcSupported, []byte{0x00, 0x3B}),
		apdu.Tlv(tagNfcEnabled, []byte{0x00, 0x20}),
	)

	s, conn := newTestSession(t, func(cmd []byte) []byte {
		assert.Equal(t, insGetDeviceInfo, cmd[1])
		return respond(page, apdu.SwOK)
	})

	info, err := s.DeviceInfo()
	require.NoError(t, err)
	assert.Empty(t, conn.handlers)

	assert.Equal(t, uint32(10190357), info.Serial)
	assert.Equal(t, "5.4.3", info.Version.String())
	assert.Equal(t, FormFactorUSBAKeychain, info.FormFactor)
	assert.False(t, info.ConfigLocked)

	assert.True(t, info.HasTransport(TransportUSB))
	assert.True(t, info.HasTransport(TransportNFC))

	usb := info.SupportedCapabilities(TransportUSB)
	assert.True(t, usb.Has(CapabilityOTP|CapabilityPIV|CapabilityOATH|CapabilityFIDO2|CapabilityHSMAuth))

	enabled := info.EnabledCapabilities(TransportUSB)
	assert.True(t, enabled.Has(CapabilityOTP|CapabilityPIV|CapabilityOATH))
	assert.False(t, enabled.Has(CapabilityFIDO2))

	assert.Equal(t, CapabilityOATH, info.EnabledCapabilities(TransportNFC))
}

func TestDeviceInfoMalformed(t *testing.T) {
	s, _ := newTestSession(t, func(cmd []byte) []byte {
		return respond([]byte{0x10, 0x01}, apdu.SwOK) // length byte overruns the page
	})

	_, err := s.DeviceInfo()
	assert.ErrorIs(t, err, ErrBadDeviceInfo)
}

func TestUpdateDeviceConfig(t *testing.T) {
	s, _ := newTestSession(t, func(cmd []byte) []byte {
		assert.Equal(t, insSetDeviceConfig, cmd[1])

		data := commandData(t, cmd)
		require.NotEmpty(t, data)
		assert.Equal(t, int(data[0]), len(data)-1)

		expected := apdu.Tlv(tagUsbEnabled, []byte{0x02, 0x31})
		expected = append(expected, apdu.Tlv(tagReboot, nil)...)
		assert.Equal(t, expected, data[1:])
		return respond(nil, apdu.SwOK)
	})

	err := s.UpdateDeviceConfig(DeviceConfig{
		EnabledCapabilities: map[Transport]Capability{
			TransportUSB: CapabilityOTP | CapabilityPIV | CapabilityOATH | CapabilityFIDO2,
		},
	}, true, nil, nil)
	require.NoError(t, err)
}

func TestSetLockCode(t *testing.T) {
	current := bytes.Repeat([]byte{0xAA}, lockCodeLen)
	next := bytes.Repeat([]byte{0xBB}, lockCodeLen)

	s, _ := newTestSession(t, func(cmd []byte) []byte {
		assert.Equal(t, insSetDeviceConfig, cmd[1])

		expected := apdu.Tlv(tagUnlock, current)
		expected = append(expected, apdu.Tlv(tagConfigLocked, next)...)
		assert.Equal(t, expected, commandData(t, cmd)[1:])
		return respond(nil, apdu.SwOK)
	})

	require.NoError(t, s.SetLockCode(current, next))
}

func TestSetLockCodeLength(t *testing.T) {
	s, _ := newTestSession(t)

	assert.Error(t, s.SetLockCode(nil, []byte{0x01}))
	assert.Error(t, s.SetLockCode([]byte{0x01}, nil))
}

func TestSetEnabled(t *testing.T) {
	page := infoPage(
		apdu.Tlv(tagNfcSupported, []byte{0x02, 0x3B}),
		apdu.Tlv(tagNfcEnabled, []byte{0x00, 0x20}),
	)

	s, conn := newTestSession(t,
		func(cmd []byte) []byte {
			assert.Equal(t, insGetDeviceInfo, cmd[1])
			return respond(page, apdu.SwOK)
		},
		func(cmd []byte) []byte {
			assert.Equal(t, insSetDeviceConfig, cmd[1])
			data := commandData(t, cmd)
			assert.Equal(t, apdu.Tlv(tagNfcEnabled, []byte{0x02, 0x20}), data[1:])
			return respond(nil, apdu.SwOK)
		},
	)

	require.NoError(t, s.SetEnabled(TransportNFC, CapabilityFIDO2, true))
	assert.Empty(t, conn.handlers)
}

func TestCapabilityString(t *testing.T) {
	assert.Equal(t, "OTP|PIV|OATH", (CapabilityOTP | CapabilityPIV | CapabilityOATH).String())
	assert.Equal(t, "none", Capability(0).String())
}
