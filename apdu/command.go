package apdu

import (
	"bytes"
	"fmt"
)

// Limits of the two ISO7816-4 length encodings. In short form an Le byte
// of 0x00 encodes 256; in extended form 0x0000 encodes 65536.
const (
	MaxShortData    = 255
	MaxShortLe      = 256
	MaxExtendedData = 65535
	MaxExtendedLe   = 65536
)

// ClaChaining is the class byte bit marking a frame that has more command
// chain frames following it.
const ClaChaining = uint8(0x10)

// Command is an ISO7816-4 command APDU.
type Command struct {
	Cla  uint8
	Ins  uint8
	P1   uint8
	P2   uint8
	Data []byte

	requiresLe bool
	le         int
}

// NewCommand returns a new apdu Command.
func NewCommand(cla, ins, p1, p2 uint8, data []byte) *Command {
	return &Command{
		Cla:  cla,
		Ins:  ins,
		P1:   p1,
		P2:   p2,
		Data: data,
	}
}

// SetLe declares how many response bytes are expected. Zero asks for as
// much as the card has available (256 in short form, 65536 in extended
// form).
func (c *Command) SetLe(le int) {
	c.requiresLe = true
	c.le = le
}

// Le returns the expected response length and whether one was set.
func (c *Command) Le() (int, bool) {
	return c.le, c.requiresLe
}

// Serialize encodes the command using short length fields. Data longer
// than MaxShortData does not fit one short frame and must be chained.
func (c *Command) Serialize() ([]byte, error) {
	return c.serialize(false)
}

// SerializeExtended encodes the command using extended length fields.
func (c *Command) SerializeExtended() ([]byte, error) {
	return c.serialize(true)
}

func (c *Command) serialize(extended bool) ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.Write([]byte{c.Cla, c.Ins, c.P1, c.P2})

	nc := len(c.Data)
	if nc > 0 {
		if extended {
			if nc > MaxExtendedData {
				return nil, fmt.Errorf("apdu: command data of %d bytes exceeds the extended frame limit", nc)
			}
			buf.Write([]byte{0x00, byte(nc >> 8), byte(nc)})
		} else {
			if nc > MaxShortData {
				return nil, fmt.Errorf("apdu: command data of %d bytes does not fit a short frame, chaining required", nc)
			}
			buf.WriteByte(byte(nc))
		}
		buf.Write(c.Data)
	}

	if c.requiresLe {
		ne := c.le
		if extended {
			if ne == 0 {
				ne = MaxExtendedLe
			}
			if ne > MaxExtendedLe {
				return nil, fmt.Errorf("apdu: expected length %d exceeds the extended frame limit", ne)
			}
			if nc == 0 {
				// Case 2 extended keeps the leading zero that would
				// otherwise introduce the Lc field.
				buf.WriteByte(0x00)
			}
			buf.Write([]byte{byte(ne >> 8), byte(ne)}) // 65536 wraps to 0x0000
		} else {
			if ne == 0 {
				ne = MaxShortLe
			}
			if ne > MaxShortLe {
				return nil, fmt.Errorf("apdu: expected length %d does not fit a short frame", ne)
			}
			buf.WriteByte(byte(ne)) // 256 wraps to 0x00
		}
	}

	return buf.Bytes(), nil
}

// Chain splits the command into short form frames carrying at most
// MaxShortData bytes of data each. Every frame but the last has the
// chaining bit set in its class byte; the expected length travels on the
// final frame only. Commands that already fit one frame come back as a
// single element.
func (c *Command) Chain() []*Command {
	if len(c.Data) <= MaxShortData {
		return []*Command{c}
	}

	var frames []*Command
	data := c.Data
	for len(data) > MaxShortData {
		frames = append(frames, &Command{
			Cla:  c.Cla | ClaChaining,
			Ins:  c.Ins,
			P1:   c.P1,
			P2:   c.P2,
			Data: data[:MaxShortData],
		})
		data = data[MaxShortData:]
	}

	frames = append(frames, &Command{
		Cla:        c.Cla,
		Ins:        c.Ins,
		P1:         c.P1,
		P2:         c.P2,
		Data:       data,
		requiresLe: c.requiresLe,
		le:         c.le,
	})

	return frames
}
