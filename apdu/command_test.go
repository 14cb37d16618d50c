package apdu

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSerializeShort(t *testing.T) {
	tests := []struct {
		name     string
		command  func() *Command
		expected []byte
	}{
		{
			name: "case 1: header only",
			command: func() *Command {
				return NewCommand(0x00, 0xA4, 0x04, 0x00, nil)
			},
			expected: []byte{0x00, 0xA4, 0x04, 0x00},
		},
		{
			name: "case 2: le only",
			command: func() *Command {
				cmd := NewCommand(0x00, 0xC0, 0x00, 0x00, nil)
				cmd.SetLe(5)
				return cmd
			},
			expected: []byte{0x00, 0xC0, 0x00, 0x00, 0x05},
		},
		{
			name: "case 2: le of 256 encodes as zero",
			command: func() *Command {
				cmd := NewCommand(0x00, 0xC0, 0x00, 0x00, nil)
				cmd.SetLe(256)
				return cmd
			},
			expected: []byte{0x00, 0xC0, 0x00, 0x00, 0x00},
		},
		{
			name: "case 2: le unset asks for everything",
			command: func() *Command {
				cmd := NewCommand(0x00, 0xA1, 0x00, 0x00, nil)
				cmd.SetLe(0)
				return cmd
			},
			expected: []byte{0x00, 0xA1, 0x00, 0x00, 0x00},
		},
		{
			name: "case 3: data only",
			command: func() *Command {
				return NewCommand(0x00, 0xA4, 0x04, 0x00, []byte{0xA0, 0x00, 0x00, 0x05, 0x27})
			},
			expected: []byte{0x00, 0xA4, 0x04, 0x00, 0x05, 0xA0, 0x00, 0x00, 0x05, 0x27},
		},
		{
			name: "case 4: data and le",
			command: func() *Command {
				cmd := NewCommand(0x80, 0x01, 0x01, 0x02, []byte{0xCA, 0xFE})
				cmd.SetLe(16)
				return cmd
			},
			expected: []byte{0x80, 0x01, 0x01, 0x02, 0x02, 0xCA, 0xFE, 0x10},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := tt.command().Serialize()
			if err != nil {
				t.Fatalf("Serialize() error: %v", err)
			}
			if diff := cmp.Diff(tt.expected, raw); diff != "" {
				t.Errorf("Serialize() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSerializeShortRejectsOversizedData(t *testing.T) {
	cmd := NewCommand(0x00, 0xDB, 0x3F, 0xFF, make([]byte, 256))
	if _, err := cmd.Serialize(); err == nil {
		t.Fatal("Serialize() accepted 256 bytes of data in a short frame")
	}
}

func TestSerializeExtended(t *testing.T) {
	data := make([]byte, 600)
	for i := range data {
		data[i] = byte(i)
	}

	cmd := NewCommand(0x00, 0xDB, 0x3F, 0xFF, data)
	cmd.SetLe(0)

	raw, err := cmd.SerializeExtended()
	if err != nil {
		t.Fatalf("SerializeExtended() error: %v", err)
	}

	header := []byte{0x00, 0xDB, 0x3F, 0xFF, 0x00, 0x02, 0x58}
	if diff := cmp.Diff(header, raw[:7]); diff != "" {
		t.Errorf("extended header mismatch (-want +got):\n%s", diff)
	}
	if !bytes.Equal(raw[7:7+600], data) {
		t.Error("extended frame does not carry the original data")
	}
	// le of "everything" is 0x0000 and follows the data directly.
	if diff := cmp.Diff([]byte{0x00, 0x00}, raw[607:]); diff != "" {
		t.Errorf("extended le mismatch (-want +got):\n%s", diff)
	}
}

func TestSerializeExtendedBounds(t *testing.T) {
	cmd := NewCommand(0x00, 0xDB, 0x3F, 0xFF, make([]byte, 65535))

	raw, err := cmd.SerializeExtended()
	if err != nil {
		t.Fatalf("SerializeExtended() error: %v", err)
	}
	if diff := cmp.Diff([]byte{0x00, 0xDB, 0x3F, 0xFF, 0x00, 0xFF, 0xFF}, raw[:7]); diff != "" {
		t.Errorf("extended Lc mismatch at the 65535 limit (-want +got):\n%s", diff)
	}
	if len(raw) != 7+65535 {
		t.Errorf("frame is %d bytes, want %d", len(raw), 7+65535)
	}

	cmd = NewCommand(0x00, 0xDB, 0x3F, 0xFF, make([]byte, 65536))
	if _, err := cmd.SerializeExtended(); err == nil {
		t.Fatal("SerializeExtended() accepted 65536 bytes of data")
	}
}

func TestSerializeExtendedNoDataKeepsLePrefix(t *testing.T) {
	cmd := NewCommand(0x00, 0xCB, 0x3F, 0xFF, nil)
	cmd.SetLe(1024)

	raw, err := cmd.SerializeExtended()
	if err != nil {
		t.Fatalf("SerializeExtended() error: %v", err)
	}
	if diff := cmp.Diff([]byte{0x00, 0xCB, 0x3F, 0xFF, 0x00, 0x04, 0x00}, raw); diff != "" {
		t.Errorf("case 2 extended mismatch (-want +got):\n%s", diff)
	}
}

// fullFrames lists n frames of maximum short form size.
func fullFrames(n int) []int {
	sizes := make([]int, n)
	for i := range sizes {
		sizes[i] = MaxShortData
	}
	return sizes
}

func TestChain(t *testing.T) {
	tests := []struct {
		name       string
		size       int
		frameSizes []int
	}{
		{"empty", 0, []int{0}},
		{"one byte", 1, []int{1}},
		{"exactly one frame", 255, []int{255}},
		{"one byte over", 256, []int{255, 1}},
		{"three frames", 600, []int{255, 255, 90}},
		{"multiple of the frame size", 510, []int{255, 255}},
		{"largest extended payload", 65535, fullFrames(257)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := make([]byte, tt.size)
			for i := range data {
				data[i] = byte(i)
			}

			cmd := NewCommand(0x00, 0x01, 0x02, 0x03, data)
			cmd.SetLe(0)
			frames := cmd.Chain()

			if len(frames) != len(tt.frameSizes) {
				t.Fatalf("Chain() produced %d frames, want %d", len(frames), len(tt.frameSizes))
			}

			var reassembled []byte
			for i, frame := range frames {
				if len(frame.Data) != tt.frameSizes[i] {
					t.Errorf("frame %d carries %d bytes, want %d", i, len(frame.Data), tt.frameSizes[i])
				}

				last := i == len(frames)-1
				if !last && frame.Cla&ClaChaining == 0 {
					t.Errorf("frame %d is missing the chaining bit", i)
				}
				if last && frame.Cla&ClaChaining != 0 {
					t.Errorf("final frame must not carry the chaining bit")
				}
				if _, hasLe := frame.Le(); hasLe != last {
					t.Errorf("frame %d: le present = %v, want %v", i, hasLe, last)
				}

				reassembled = append(reassembled, frame.Data...)
			}

			if !bytes.Equal(reassembled, data) {
				t.Error("chained frames do not reassemble into the original data")
			}
		})
	}
}
