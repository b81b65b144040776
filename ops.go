package cff

import (
	"fmt"
	"math"

	"github.com/tdewolff/parse/v2"
)

// Operation is one charstring operator with the operands that preceded it.
// For hintmask and cntrmask, Mask holds the trailing mask bytes. An ordered
// sequence of operations losslessly represents one charstring's bytecode;
// subroutine calls are recorded, not followed.
type Operation struct {
	Op   int
	Args []float64
	Mask []byte
}

// Operations is the editable view of one charstring program.
type Operations []Operation

// ParseOperations tokenizes charstring bytecode into an editable operation
// list without interpreting widths, pen positions, or subroutines. The stem
// count is tracked only to size hint masks.
func ParseOperations(b []byte) (Operations, error) {
	var ops Operations
	var args []float64
	stems := 0
	r := parse.NewBinaryReader(b)
	for 0 < r.Len() {
		b0 := int(r.ReadUint8())
		if 32 <= b0 || b0 == 28 {
			v, err := readCharStringNumber(r, b0)
			if err != nil {
				return nil, err
			}
			args = append(args, v)
			continue
		}
		if b0 == 12 {
			if r.Len() < 1 {
				return nil, fmt.Errorf("%w: truncated operator at %d", ErrCorruptedCharString, r.Pos())
			}
			b0 = 256 + int(r.ReadUint8())
		}

		op := Operation{Op: b0, Args: args}
		switch b0 {
		case opHstem, opVstem, opHstemhm, opVstemhm:
			stems += len(args) / 2
		case opHintmask, opCntrmask:
			// operands before the mask are an implicit vstem sequence
			stems += len(args) / 2
			n := uint32(maskSize(stems))
			if r.Len() < n {
				return nil, fmt.Errorf("%w: truncated hint mask at %d", ErrCorruptedCharString, r.Pos())
			}
			op.Mask = r.ReadBytes(n)
		}
		ops = append(ops, op)
		args = nil
	}
	if 0 < len(args) {
		return nil, fmt.Errorf("%w: trailing operands", ErrCorruptedCharString)
	}
	return ops, nil
}

// Write re-encodes the operation list to charstring bytecode.
func (ops Operations) Write() ([]byte, error) {
	w := parse.NewBinaryWriter([]byte{})
	for _, op := range ops {
		for _, v := range op.Args {
			if err := writeCharStringNumber(w, v); err != nil {
				return nil, err
			}
		}
		if op.Op < 0 || 256+256 <= op.Op || op.Op == 12 {
			return nil, fmt.Errorf("%w: bad operator %d", ErrCorruptedCharString, op.Op)
		} else if 256 <= op.Op {
			w.WriteUint8(12)
			w.WriteUint8(uint8(op.Op - 256))
		} else {
			w.WriteUint8(uint8(op.Op))
		}
		w.WriteBytes(op.Mask)
	}
	return w.Bytes(), nil
}

// isPathOp returns true for the path-construction operators: the moveto,
// lineto, curveto, and flex families.
func isPathOp(op int) bool {
	switch op {
	case opRmoveto, opHmoveto, opVmoveto,
		opRlineto, opHlineto, opVlineto,
		opRrcurveto, opRcurveline, opRlinecurve,
		opHhcurveto, opVvcurveto, opHvcurveto, opVhcurveto,
		opHflex, opFlex, opHflex1, opFlex1:
		return true
	}
	return false
}

// HintInsertionPoint returns the only legal index for inserting new hint
// operations: before the first path-construction operator, or before
// endchar when the program draws nothing.
func (ops Operations) HintInsertionPoint() int {
	for i, op := range ops {
		if isPathOp(op.Op) || op.Op == opEndchar {
			return i
		}
	}
	return len(ops)
}

// Insert returns a copy of the operation list with extra inserted at index
// i. Inserting after path construction began is refused.
func (ops Operations) Insert(i int, extra ...Operation) (Operations, error) {
	if i < 0 || len(ops) < i {
		return nil, fmt.Errorf("%w: index %d out of range", ErrInvalidEdit, i)
	} else if ops.HintInsertionPoint() < i {
		return nil, fmt.Errorf("%w: index %d is after path construction began", ErrInvalidEdit, i)
	}
	edited := make(Operations, 0, len(ops)+len(extra))
	edited = append(edited, ops[:i]...)
	edited = append(edited, extra...)
	edited = append(edited, ops[i:]...)
	return edited, nil
}

// InsertHints inserts hint operations at the legal insertion point.
func (ops Operations) InsertHints(extra ...Operation) (Operations, error) {
	return ops.Insert(ops.HintInsertionPoint(), extra...)
}

// rebuildCharStrings builds a new CharStrings INDEX from a base INDEX and a
// set of replacement charstrings by glyph ID; untouched glyphs are copied
// verbatim.
func rebuildCharStrings(base *index, replacements map[uint16][]byte) (*index, error) {
	rebuilt := &index{}
	n := base.Len()
	if math.MaxUint16 < n {
		return nil, fmt.Errorf("%w: too many charstrings", ErrMalformedIndex)
	}
	for glyphID := 0; glyphID < n; glyphID++ {
		data, ok := replacements[uint16(glyphID)]
		if !ok {
			data = base.Get(uint16(glyphID))
		}
		if MaxCharStringLength < len(data) {
			return nil, fmt.Errorf("%w: glyph %d: charstring too long", ErrCorruptedCharString, glyphID)
		}
		rebuilt.Add(data)
	}
	return rebuilt, nil
}

// ReplaceCharStrings rebuilds the font's CharStrings INDEX with the given
// replacement charstrings by glyph ID.
func (f *Font) ReplaceCharStrings(replacements map[uint16][]byte) error {
	rebuilt, err := rebuildCharStrings(f.charStrings, replacements)
	if err != nil {
		return fmt.Errorf("CFF: CharStrings INDEX: %w", err)
	}
	f.charStrings = rebuilt
	if f.fonts.fds == nil && 0 < len(f.fonts.first) {
		f.fonts.first[len(f.fonts.first)-1] = uint32(rebuilt.Len())
	}
	return nil
}
