package cff

import (
	"bytes"
	"fmt"
	"math"

	"github.com/tdewolff/parse/v2"
)

// index is CFF's generic array container: a count, an offset table of
// self-describing width, and the concatenated item data. Offsets are kept
// zero-based in memory; the wire format is one-based.
type index struct {
	offset []uint32
	data   []byte
}

func (t *index) Len() int {
	if len(t.offset) == 0 {
		return 0
	}
	return len(t.offset) - 1
}

// Get returns item i, or nil when i is out of range.
func (t *index) Get(i uint16) []byte {
	if int(i) < t.Len() {
		return t.data[t.offset[i]:t.offset[i+1]]
	}
	return nil
}

// GetSID resolves a string ID against the standard strings followed by this
// String INDEX. Unknown SIDs resolve to the empty string.
func (t *index) GetSID(sid int) string {
	if 0 <= sid && sid < len(cffStandardStrings) {
		return cffStandardStrings[sid]
	}
	sid -= len(cffStandardStrings)
	if sid < 0 || math.MaxUint16 < sid {
		return ""
	}
	if b := t.Get(uint16(sid)); b != nil {
		return string(b)
	}
	return ""
}

// Add appends an item and returns its index.
func (t *index) Add(data []byte) int {
	if len(t.offset) == 0 {
		t.offset = append(t.offset, 0)
	}
	t.data = append(t.data, data...)
	t.offset = append(t.offset, uint32(len(t.data)))
	return len(t.offset) - 2
}

// AddSID returns the string ID for data, adding it to the String INDEX when
// it is neither a standard string nor already present.
func (t *index) AddSID(data []byte) int {
	for i, s := range cffStandardStrings {
		if bytes.Equal(data, []byte(s)) {
			return i
		}
	}
	for i := 0; i+1 < len(t.offset); i++ {
		if bytes.Equal(data, t.data[t.offset[i]:t.offset[i+1]]) {
			return i + len(cffStandardStrings)
		}
	}
	return t.Add(data) + len(cffStandardStrings)
}

func parseIndex(r *parse.BinaryReader) (*index, error) {
	t := &index{}
	if r.Len() < 2 {
		return nil, fmt.Errorf("%w: truncated count at %d", ErrMalformedIndex, r.Pos())
	}
	count := uint32(r.ReadUint16())
	if count == 0 {
		// empty INDEX is just the two count bytes
		return t, nil
	} else if MaxIndexItems < count {
		return nil, fmt.Errorf("%w: too many items at %d", ErrMalformedIndex, r.Pos())
	}

	if r.Len() < 1 {
		return nil, fmt.Errorf("%w: truncated offSize at %d", ErrMalformedIndex, r.Pos())
	}
	offSize := r.ReadUint8()
	if offSize == 0 || 4 < offSize {
		return nil, fmt.Errorf("%w: bad offSize %d at %d", ErrMalformedIndex, offSize, r.Pos())
	}
	if r.Len() < uint32(offSize)*(count+1) {
		return nil, fmt.Errorf("%w: truncated offsets at %d", ErrMalformedIndex, r.Pos())
	}

	t.offset = make([]uint32, count+1)
	for i := uint32(0); i < count+1; i++ {
		var offset uint32
		switch offSize {
		case 1:
			offset = uint32(r.ReadUint8())
		case 2:
			offset = uint32(r.ReadUint16())
		case 3:
			offset = uint32(r.ReadUint16())<<8 + uint32(r.ReadUint8())
		default:
			offset = r.ReadUint32()
		}
		if offset == 0 {
			return nil, fmt.Errorf("%w: zero offset at %d", ErrMalformedIndex, r.Pos())
		}
		t.offset[i] = offset - 1
	}
	if t.offset[0] != 0 {
		return nil, fmt.Errorf("%w: first offset must be 1 at %d", ErrMalformedIndex, r.Pos())
	}
	for i := uint32(0); i < count; i++ {
		if t.offset[i+1] < t.offset[i] {
			return nil, fmt.Errorf("%w: non-ascending offsets at %d", ErrMalformedIndex, r.Pos())
		}
	}
	if r.Len() < t.offset[count] {
		return nil, fmt.Errorf("%w: truncated data at %d", ErrMalformedIndex, r.Pos())
	}
	t.data = r.ReadBytes(t.offset[count])
	return t, nil
}

func indexOffSize(n int) int {
	if n <= math.MaxUint8 {
		return 1
	} else if n <= math.MaxUint16 {
		return 2
	} else if n <= 1<<24-1 {
		return 3
	}
	return 4
}

// Write serializes the INDEX, choosing the smallest offset width that can
// represent the final one-based offset.
func (t *index) Write() ([]byte, error) {
	if math.MaxUint16 < t.Len() {
		return nil, fmt.Errorf("%w: too many items", ErrMalformedIndex)
	} else if t.Len() == 0 {
		return []byte{0, 0}, nil
	} else if t.offset[0] != 0 || int(t.offset[len(t.offset)-1]) != len(t.data) {
		return nil, fmt.Errorf("%w: bad offsets", ErrMalformedIndex)
	}

	offSize := indexOffSize(len(t.data) + 1)
	n := 3 + offSize*len(t.offset) + len(t.data)
	w := parse.NewBinaryWriter(make([]byte, 0, n))
	w.WriteUint16(uint16(t.Len()))
	w.WriteUint8(uint8(offSize))
	for _, offset := range t.offset {
		switch offSize {
		case 1:
			w.WriteUint8(uint8(offset + 1))
		case 2:
			w.WriteUint16(uint16(offset + 1))
		case 3:
			w.WriteUint8(uint8((offset + 1) >> 16))
			w.WriteUint16(uint16(offset + 1))
		default:
			w.WriteUint32(offset + 1)
		}
	}
	w.WriteBytes(t.data)
	return w.Bytes(), nil
}

// subrsBias is the call index bias for a subroutine INDEX of n items.
func subrsBias(n int) int {
	if n < 1240 {
		return 107
	} else if n < 33900 {
		return 1131
	}
	return 32768
}
