package cff

import (
	"bytes"
	"fmt"
	"math"
	"strconv"

	"github.com/tdewolff/parse/v2"
)

// dictEntry is one operator with its operands, used to preserve tags that are
// not part of the fixed Top/Private DICT schemas. Operands are kept both as
// integers and as reals; reals[i] is NaN when the operand was an integer.
type dictEntry struct {
	op    int
	ints  []int
	reals []float64
}

// parseDICT tokenizes a DICT byte buffer. Operands accumulate on a stack
// until an operator consumes them all; the callback receives the operator tag
// (two-byte operators as 256+b1) with its operands.
func parseDICT(b []byte, callback func(op int, is []int, fs []float64)) error {
	r := parse.NewBinaryReader(b)
	ints := []int{}
	reals := []float64{}
	for 0 < r.Len() {
		b0 := int(r.ReadUint8())
		if b0 < 22 {
			// operator
			if b0 == 12 {
				if r.Len() < 1 {
					return fmt.Errorf("%w: truncated operator at %d", ErrMalformedDict, r.Pos())
				}
				b0 = 256 + int(r.ReadUint8())
			}
			callback(b0, ints, reals)
			ints = []int{}
			reals = []float64{}
		} else if 22 <= b0 && b0 < 28 || b0 == 31 || b0 == 255 {
			return fmt.Errorf("%w: reserved lead byte %d at %d", ErrMalformedDict, b0, r.Pos())
		} else {
			if maxOperandStack <= len(ints) {
				return fmt.Errorf("%w: too many operands at %d", ErrMalformedDict, r.Pos())
			}
			i, f, err := parseDICTNumber(b0, r)
			if err != nil {
				return err
			}
			if !math.IsNaN(f) {
				i = int(f + math.Copysign(0.5, f))
			}
			ints = append(ints, i)
			reals = append(reals, f)
		}
	}
	return nil
}

// parseDICTNumber decodes one operand with lead byte b0. The real return is
// NaN when the operand is an integer.
func parseDICTNumber(b0 int, r *parse.BinaryReader) (int, float64, error) {
	if b0 == 28 {
		if r.Len() < 2 {
			return 0, 0, fmt.Errorf("%w: truncated operand at %d", ErrMalformedDict, r.Pos())
		}
		return int(r.ReadInt16()), math.NaN(), nil
	} else if b0 == 29 {
		if r.Len() < 4 {
			return 0, 0, fmt.Errorf("%w: truncated operand at %d", ErrMalformedDict, r.Pos())
		}
		return int(r.ReadInt32()), math.NaN(), nil
	} else if b0 == 30 {
		num := []byte{}
		for {
			if r.Len() < 1 {
				return 0, 0, fmt.Errorf("%w: unterminated real at %d", ErrMalformedDict, r.Pos())
			}
			b := r.ReadUint8()
			for i := 0; i < 2; i++ {
				switch b >> 4 {
				case 0x0A:
					num = append(num, '.')
				case 0x0B:
					num = append(num, 'E')
				case 0x0C:
					num = append(num, 'E', '-')
				case 0x0D:
					// reserved
				case 0x0E:
					num = append(num, '-')
				case 0x0F:
					f, err := strconv.ParseFloat(string(num), 64)
					if err != nil {
						return 0, 0, fmt.Errorf("%w: bad real at %d", ErrMalformedDict, r.Pos())
					}
					return 0, f, nil
				default:
					num = append(num, '0'+byte(b>>4))
				}
				b = b << 4
			}
		}
	} else if b0 < 247 {
		return b0 - 139, math.NaN(), nil
	} else if b0 < 251 {
		if r.Len() < 1 {
			return 0, 0, fmt.Errorf("%w: truncated operand at %d", ErrMalformedDict, r.Pos())
		}
		b1 := int(r.ReadUint8())
		return (b0-247)*256 + b1 + 108, math.NaN(), nil
	}
	if r.Len() < 1 {
		return 0, 0, fmt.Errorf("%w: truncated operand at %d", ErrMalformedDict, r.Pos())
	}
	b1 := int(r.ReadUint8())
	return -(b0-251)*256 - b1 - 108, math.NaN(), nil
}

// returns: integer, float, useFloat, ok
func dictNumber(val any) (int, float64, bool, bool) {
	switch v := val.(type) {
	case int:
		return v, float64(v), false, true
	case float64:
		var i int
		useFloat := false
		if integer, frac := math.Modf(v); frac == 0.0 {
			i = int(integer)
		} else {
			useFloat = true
		}
		return i, v, useFloat, true
	case bool:
		if v {
			return 1, 1.0, false, true
		}
		return 0, 0.0, false, true
	default:
		return 0, 0.0, false, false
	}
}

func dictFloat(f float64) ([]byte, int) {
	floatNibbles := strconv.AppendFloat([]byte{}, f, 'G', 6, 64)
	// a positive exponent sign has no nibble encoding and parses the same without it
	if i := bytes.IndexByte(floatNibbles, '+'); i != -1 {
		floatNibbles = append(floatNibbles[:i], floatNibbles[i+1:]...)
	}
	n := (len(floatNibbles) + 2) / 2 // including end nibble
	return floatNibbles, 1 + n       // lead byte and nibbles
}

func dictNumberSize(v any) int {
	i, f, useFloat, ok := dictNumber(v)
	if !ok {
		return 0
	}
	_, nFloat := dictFloat(f)
	if useFloat {
		return nFloat
	}
	return dictIntegerSize(i)
}

func dictIntegerSize(i int) int {
	if -107 <= i && i <= 107 {
		return 1
	} else if -1131 <= i && i <= -108 || 108 <= i && i <= 1131 {
		return 2
	} else if -32768 <= i && i <= 32767 {
		return 3
	}
	return 5
}

// writeDICTEntry emits the operands followed by the operator, choosing the
// shortest integer encoding and the nibble format for non-integral reals.
func writeDICTEntry(w *parse.BinaryWriter, op int, vals ...any) error {
	if len(vals) == 1 {
		switch vs := vals[0].(type) {
		case []int:
			vals = make([]any, 0, len(vs))
			for _, v := range vs {
				vals = append(vals, v)
			}
		case []float64:
			vals = make([]any, 0, len(vs))
			for _, v := range vs {
				vals = append(vals, v)
			}
		}
	}
	if maxOperandStack < len(vals) {
		return fmt.Errorf("%w: too many operands", ErrMalformedDict)
	}

	for _, val := range vals {
		i, f, useFloat, ok := dictNumber(val)
		if !ok {
			return fmt.Errorf("%w: unknown operand type %T", ErrMalformedDict, val)
		}

		if useFloat {
			writeDICTFloat(w, f)
		} else if -107 <= i && i <= 107 {
			w.WriteUint8(uint8(i + 139))
		} else if 108 <= i && i <= 1131 {
			i -= 108
			w.WriteUint8(uint8(i/256 + 247))
			w.WriteUint8(uint8(i % 256))
		} else if -1131 <= i && i <= -108 {
			i = -i - 108
			w.WriteUint8(uint8(i/256 + 251))
			w.WriteUint8(uint8(i % 256))
		} else if -32768 <= i && i <= 32767 {
			w.WriteUint8(28)
			w.WriteUint16(uint16(i))
		} else {
			w.WriteUint8(29)
			w.WriteUint32(uint32(i))
		}
	}

	if 256+256 <= op || op == 12 {
		return fmt.Errorf("%w: bad operator %d", ErrMalformedDict, op)
	} else if 256 <= op {
		w.WriteUint8(12)
		op -= 256
	}
	w.WriteUint8(uint8(op))
	return nil
}

func writeDICTFloat(w *parse.BinaryWriter, f float64) {
	floatNibbles, _ := dictFloat(f)
	n := 0
	var b uint8
	w.WriteUint8(30)
	for i := 0; i < len(floatNibbles); i++ {
		b <<= 4
		switch floatNibbles[i] {
		case '.':
			b |= 0x0A
		case 'E':
			if i+1 < len(floatNibbles) && floatNibbles[i+1] == '-' {
				b |= 0x0C
				i++
			} else {
				b |= 0x0B
			}
		case '-':
			b |= 0x0E
		default:
			b |= uint8(floatNibbles[i] - '0')
		}
		n++
		if n%2 == 0 {
			w.WriteUint8(b)
			b = 0
		}
	}
	if n%2 == 1 {
		b <<= 4
		b |= 0x0F
		w.WriteUint8(b)
	} else {
		w.WriteUint8(0xFF)
	}
}

type topDICT struct {
	IsSynthetic bool
	IsCID       bool

	Version            string
	Notice             string
	Copyright          string
	FullName           string
	FamilyName         string
	Weight             string
	IsFixedPitch       bool
	ItalicAngle        float64
	UnderlinePosition  float64
	UnderlineThickness float64
	PaintType          int
	CharstringType     int
	FontMatrix         [6]float64
	UniqueID           int
	FontBBox           [4]float64
	StrokeWidth        float64
	XUID               []int
	Charset            int
	Encoding           int
	CharStrings        int
	PrivateOffset      int
	PrivateLength      int
	SyntheticBase      int
	PostScript         string
	BaseFontName       string
	BaseFontBlend      []int
	ROS1               string
	ROS2               string
	ROS3               int
	CIDFontVersion     int
	CIDFontRevision    int
	CIDFontType        int
	CIDCount           int
	UIDBase            int
	FDArray            int
	FDSelect           int
	FontName           string

	unknown []dictEntry
}

func parseTopDICT(b []byte, stringIndex *index) (*topDICT, error) {
	dict := &topDICT{
		UnderlinePosition:  -100,
		UnderlineThickness: 50,
		CharstringType:     2,
		FontMatrix:         [6]float64{0.001, 0.0, 0.0, 0.001, 0.0, 0.0},
		CIDCount:           8720,
	}
	err := parseDICT(b, func(op int, is []int, fs []float64) {
		switch op {
		case 0:
			dict.Version = stringIndex.GetSID(first(is))
		case 1:
			dict.Notice = stringIndex.GetSID(first(is))
		case 256 + 0:
			dict.Copyright = stringIndex.GetSID(first(is))
		case 2:
			dict.FullName = stringIndex.GetSID(first(is))
		case 3:
			dict.FamilyName = stringIndex.GetSID(first(is))
		case 4:
			dict.Weight = stringIndex.GetSID(first(is))
		case 256 + 1:
			dict.IsFixedPitch = first(is) != 0
		case 256 + 2:
			dict.ItalicAngle = firstReal(is, fs)
		case 256 + 3:
			dict.UnderlinePosition = firstReal(is, fs)
		case 256 + 4:
			dict.UnderlineThickness = firstReal(is, fs)
		case 256 + 5:
			dict.PaintType = first(is)
		case 256 + 6:
			dict.CharstringType = first(is)
		case 256 + 7:
			copyReals(dict.FontMatrix[:], is, fs)
		case 13:
			dict.UniqueID = first(is)
		case 5:
			copyReals(dict.FontBBox[:], is, fs)
		case 256 + 8:
			dict.StrokeWidth = firstReal(is, fs)
		case 14:
			dict.XUID = is
		case 15:
			dict.Charset = first(is)
		case 16:
			dict.Encoding = first(is)
		case 17:
			dict.CharStrings = first(is)
		case 18:
			if 2 <= len(is) {
				dict.PrivateLength = is[0]
				dict.PrivateOffset = is[1]
			}
		case 256 + 20:
			dict.IsSynthetic = true
			dict.SyntheticBase = first(is)
		case 256 + 21:
			dict.PostScript = stringIndex.GetSID(first(is))
		case 256 + 22:
			dict.BaseFontName = stringIndex.GetSID(first(is))
		case 256 + 23:
			dict.BaseFontBlend = is
		case 256 + 30:
			dict.IsCID = true
			if 3 <= len(is) {
				dict.ROS1 = stringIndex.GetSID(is[0])
				dict.ROS2 = stringIndex.GetSID(is[1])
				dict.ROS3 = is[2]
			}
		case 256 + 31:
			dict.CIDFontVersion = first(is)
		case 256 + 32:
			dict.CIDFontRevision = first(is)
		case 256 + 33:
			dict.CIDFontType = first(is)
		case 256 + 34:
			dict.CIDCount = first(is)
		case 256 + 35:
			dict.UIDBase = first(is)
		case 256 + 36:
			dict.FDArray = first(is)
		case 256 + 37:
			dict.FDSelect = first(is)
		case 256 + 38:
			dict.FontName = stringIndex.GetSID(first(is))
		default:
			dict.unknown = append(dict.unknown, dictEntry{op, is, fs})
		}
	})
	if err != nil {
		return nil, fmt.Errorf("Top DICT: %w", err)
	}
	return dict, nil
}

// Write re-encodes the Top DICT, except for the CharStrings and Private
// entries which the table assembler appends once their offsets are known.
func (t *topDICT) Write(strings *index) ([]byte, error) {
	w := parse.NewBinaryWriter([]byte{})
	if t.Version != "" {
		writeDICTEntry(w, 0, strings.AddSID([]byte(t.Version)))
	}
	if t.Notice != "" {
		writeDICTEntry(w, 1, strings.AddSID([]byte(t.Notice)))
	}
	if t.Copyright != "" {
		writeDICTEntry(w, 256+0, strings.AddSID([]byte(t.Copyright)))
	}
	if t.FullName != "" {
		writeDICTEntry(w, 2, strings.AddSID([]byte(t.FullName)))
	}
	if t.FamilyName != "" {
		writeDICTEntry(w, 3, strings.AddSID([]byte(t.FamilyName)))
	}
	if t.Weight != "" {
		writeDICTEntry(w, 4, strings.AddSID([]byte(t.Weight)))
	}
	if t.IsFixedPitch {
		writeDICTEntry(w, 256+1, 1)
	}
	if t.ItalicAngle != 0.0 {
		writeDICTEntry(w, 256+2, t.ItalicAngle)
	}
	if t.UnderlinePosition != -100.0 {
		writeDICTEntry(w, 256+3, t.UnderlinePosition)
	}
	if t.UnderlineThickness != 50.0 {
		writeDICTEntry(w, 256+4, t.UnderlineThickness)
	}
	if t.PaintType != 0 {
		writeDICTEntry(w, 256+5, t.PaintType)
	}
	if t.CharstringType != 2 {
		return nil, fmt.Errorf("%w: CharstringType must be 2", ErrUnsupported)
	}
	if t.FontMatrix != [6]float64{0.001, 0, 0, 0.001, 0, 0} {
		writeDICTEntry(w, 256+7, t.FontMatrix[:])
	}
	if t.UniqueID != 0 {
		writeDICTEntry(w, 13, t.UniqueID)
	}
	if t.FontBBox != [4]float64{0, 0, 0, 0} {
		writeDICTEntry(w, 5, t.FontBBox[:])
	}
	if t.StrokeWidth != 0.0 {
		writeDICTEntry(w, 256+8, t.StrokeWidth)
	}
	if 0 < len(t.XUID) {
		writeDICTEntry(w, 14, t.XUID)
	}
	if t.SyntheticBase != 0 {
		writeDICTEntry(w, 256+20, t.SyntheticBase)
	}
	if t.PostScript != "" {
		writeDICTEntry(w, 256+21, strings.AddSID([]byte(t.PostScript)))
	}
	if t.BaseFontName != "" {
		writeDICTEntry(w, 256+22, strings.AddSID([]byte(t.BaseFontName)))
	}
	if 0 < len(t.BaseFontBlend) {
		writeDICTEntry(w, 256+23, t.BaseFontBlend)
	}
	for _, e := range t.unknown {
		if err := writeDICTEntry(w, e.op, entryOperands(e)...); err != nil {
			return nil, err
		}
	}
	return w.Bytes(), nil
}

type privateDICT struct {
	BlueValues        []float64
	OtherBlues        []float64
	FamilyBlues       []float64
	FamilyOtherBlues  []float64
	BlueScale         float64
	BlueShift         float64
	BlueFuzz          float64
	StdHW             float64
	StdVW             float64
	StemSnapH         []float64
	StemSnapV         []float64
	ForceBold         bool
	LanguageGroup     int
	ExpansionFactor   float64
	InitialRandomSeed int
	Subrs             int
	DefaultWidthX     float64
	NominalWidthX     float64

	unknown []dictEntry
}

func parsePrivateDICT(b []byte) (*privateDICT, error) {
	dict := &privateDICT{
		BlueScale:       0.039625,
		BlueShift:       7.0,
		BlueFuzz:        1.0,
		ExpansionFactor: 0.06,
	}
	err := parseDICT(b, func(op int, is []int, fs []float64) {
		switch op {
		case 6:
			dict.BlueValues = realsOf(is, fs)
		case 7:
			dict.OtherBlues = realsOf(is, fs)
		case 8:
			dict.FamilyBlues = realsOf(is, fs)
		case 9:
			dict.FamilyOtherBlues = realsOf(is, fs)
		case 256 + 9:
			dict.BlueScale = firstReal(is, fs)
		case 256 + 10:
			dict.BlueShift = firstReal(is, fs)
		case 256 + 11:
			dict.BlueFuzz = firstReal(is, fs)
		case 10:
			dict.StdHW = firstReal(is, fs)
		case 11:
			dict.StdVW = firstReal(is, fs)
		case 256 + 12:
			dict.StemSnapH = realsOf(is, fs)
		case 256 + 13:
			dict.StemSnapV = realsOf(is, fs)
		case 256 + 14:
			dict.ForceBold = first(is) != 0
		case 256 + 17:
			dict.LanguageGroup = first(is)
		case 256 + 18:
			dict.ExpansionFactor = firstReal(is, fs)
		case 256 + 19:
			dict.InitialRandomSeed = first(is)
		case 19:
			dict.Subrs = first(is)
		case 20:
			dict.DefaultWidthX = firstReal(is, fs)
		case 21:
			dict.NominalWidthX = firstReal(is, fs)
		default:
			dict.unknown = append(dict.unknown, dictEntry{op, is, fs})
		}
	})
	if err != nil {
		return nil, fmt.Errorf("Private DICT: %w", err)
	}
	return dict, nil
}

// Write re-encodes the Private DICT, except for the Subrs entry which the
// table assembler appends once the local subroutine offset is known.
func (t *privateDICT) Write() ([]byte, error) {
	w := parse.NewBinaryWriter([]byte{})
	if 0 < len(t.BlueValues) {
		writeDICTEntry(w, 6, t.BlueValues)
	}
	if 0 < len(t.OtherBlues) {
		writeDICTEntry(w, 7, t.OtherBlues)
	}
	if 0 < len(t.FamilyBlues) {
		writeDICTEntry(w, 8, t.FamilyBlues)
	}
	if 0 < len(t.FamilyOtherBlues) {
		writeDICTEntry(w, 9, t.FamilyOtherBlues)
	}
	if t.BlueScale != 0.039625 {
		writeDICTEntry(w, 256+9, t.BlueScale)
	}
	if t.BlueShift != 7.0 {
		writeDICTEntry(w, 256+10, t.BlueShift)
	}
	if t.BlueFuzz != 1.0 {
		writeDICTEntry(w, 256+11, t.BlueFuzz)
	}
	if t.StdHW != 0.0 {
		writeDICTEntry(w, 10, t.StdHW)
	}
	if t.StdVW != 0.0 {
		writeDICTEntry(w, 11, t.StdVW)
	}
	if len(t.StemSnapH) != 0 {
		writeDICTEntry(w, 256+12, t.StemSnapH)
	}
	if len(t.StemSnapV) != 0 {
		writeDICTEntry(w, 256+13, t.StemSnapV)
	}
	if t.ForceBold {
		writeDICTEntry(w, 256+14, t.ForceBold)
	}
	if t.LanguageGroup != 0 {
		writeDICTEntry(w, 256+17, t.LanguageGroup)
	}
	if t.ExpansionFactor != 0.06 {
		writeDICTEntry(w, 256+18, t.ExpansionFactor)
	}
	if t.InitialRandomSeed != 0 {
		writeDICTEntry(w, 256+19, t.InitialRandomSeed)
	}
	if t.DefaultWidthX != 0 {
		writeDICTEntry(w, 20, t.DefaultWidthX)
	}
	if t.NominalWidthX != 0 {
		writeDICTEntry(w, 21, t.NominalWidthX)
	}
	for _, e := range t.unknown {
		if err := writeDICTEntry(w, e.op, entryOperands(e)...); err != nil {
			return nil, err
		}
	}
	return w.Bytes(), nil
}

func first(is []int) int {
	if len(is) == 0 {
		return 0
	}
	return is[0]
}

func firstReal(is []int, fs []float64) float64 {
	if len(fs) == 0 {
		return 0
	}
	if math.IsNaN(fs[0]) {
		return float64(first(is))
	}
	return fs[0]
}

func realsOf(is []int, fs []float64) []float64 {
	vs := make([]float64, len(fs))
	for i := range fs {
		if math.IsNaN(fs[i]) {
			vs[i] = float64(is[i])
		} else {
			vs[i] = fs[i]
		}
	}
	return vs
}

func copyReals(dst []float64, is []int, fs []float64) {
	copy(dst, realsOf(is, fs))
}

func entryOperands(e dictEntry) []any {
	vals := make([]any, len(e.ints))
	for i := range e.ints {
		if math.IsNaN(e.reals[i]) {
			vals[i] = e.ints[i]
		} else {
			vals[i] = e.reals[i]
		}
	}
	return vals
}

// dictAppendedOffsetSize returns the encoded size of an offset operand that
// is appended to the DICT it points past, so that the operand's own length
// shifts the offset it encodes.
func dictAppendedOffsetSize(offset int) int {
	if offset+1 <= 107 {
		return 1
	} else if offset+2 <= 1131 {
		return 2
	} else if offset+3 <= 32767 {
		return 3
	}
	return 5
}
