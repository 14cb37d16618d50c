package oath

import (
	"bytes"
	"fmt"
)

// Credential is a single stored OATH credential.
type Credential struct {
	// DeviceID names the device the credential lives on. Together with ID
	// it forms the credential's identity: the same account provisioned on
	// two devices is two distinct credentials.
	DeviceID string

	// ID is the raw identifier under which the device stores the
	// credential. It round-trips through ParseID.
	ID []byte

	Issuer string
	Name   string
	Period int
	Type   Type

	// TouchRequired is only learned from CALCULATE responses; a
	// credential built from a LIST record alone reports false.
	TouchRequired bool
}

// newCredential builds a Credential from its raw id, recovering issuer,
// name and period.
func newCredential(deviceID string, id []byte, typ Type) *Credential {
	issuer, name, period := ParseID(id, typ)
	return &Credential{
		DeviceID: deviceID,
		ID:       append([]byte{}, id...),
		Issuer:   issuer,
		Name:     name,
		Period:   period,
		Type:     typ,
	}
}

// parseListRecord decodes one LIST entry: a combined type/algorithm byte
// followed by the credential id. Whether the credential requires touch is
// unknown at this point.
func parseListRecord(deviceID string, record []byte) (*Credential, error) {
	if len(record) < 2 {
		return nil, fmt.Errorf("oath: list record of %d bytes is too short", len(record))
	}

	typ, err := parseType(record[0] & 0xF0)
	if err != nil {
		return nil, err
	}
	if _, err := parseAlgorithm(record[0] & 0x0F); err != nil {
		return nil, err
	}

	return newCredential(deviceID, record[1:], typ), nil
}

// parseCalculateRecord builds a Credential from the id and response tag of
// a CALCULATE/CALCULATE_ALL entry. The tag distinguishes HOTP from TOTP
// sub-kinds and flags credentials that need touch before they produce a
// code.
func parseCalculateRecord(deviceID string, id []byte, responseTag uint8) (*Credential, error) {
	switch responseTag {
	case tagFullResponse, tagTruncatedResponse, tagHotpResponse, tagTouchResponse:
	default:
		return nil, fmt.Errorf("oath: unexpected calculate response tag 0x%02x", responseTag)
	}

	typ := TOTP
	if responseTag == tagHotpResponse {
		typ = HOTP
	}

	cred := newCredential(deviceID, id, typ)
	cred.TouchRequired = responseTag == tagTouchResponse
	return cred, nil
}

// Equal reports whether two credentials share the same identity.
func (c *Credential) Equal(other *Credential) bool {
	return c.DeviceID == other.DeviceID && bytes.Equal(c.ID, other.ID)
}

// Key returns the composite identity as a value usable as a map key.
func (c *Credential) Key() string {
	return c.DeviceID + "/" + string(c.ID)
}

// String implements the fmt.Stringer interface.
func (c *Credential) String() string {
	if c.Issuer == "" {
		return c.Name
	}
	return c.Issuer + ":" + c.Name
}
