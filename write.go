package cff

import (
	"fmt"
	"math"

	"github.com/tdewolff/parse/v2"
)

// cffSections holds the serialized sections of a CFF table during offset
// recomputation, in file order. The Top DICT INDEX is rebuilt once the
// CharStrings and Private offsets are known.
type cffSections struct {
	header      []byte
	name        []byte
	topIndex    []byte
	strings     []byte
	globalSubrs []byte
	charStrings []byte
	private     []byte
	localSubrs  []byte
}

// recomputeOffsets rebuilds the Top DICT INDEX with the CharStrings and
// Private DICT offsets filled in. Encoding the offsets can change the Top
// DICT's own length and thereby the offsets themselves, so the computation
// repeats until the sizes stabilize; it fails loudly when the pass bound is
// exceeded instead of emitting a misaligned table.
func (s *cffSections) recomputeOffsets(topBody []byte, hasPrivate bool) error {
	prefix := len(s.header) + len(s.name)
	charStringsOffset, privateOffset := 0, 0
	for pass := 0; ; pass++ {
		if maxOffsetPasses <= pass {
			return fmt.Errorf("%w: section offsets do not converge", ErrUnsupported)
		}

		wTop := parse.NewBinaryWriter(append([]byte{}, topBody...))
		if err := writeDICTEntry(wTop, 17, charStringsOffset); err != nil {
			return err
		}
		if hasPrivate {
			if err := writeDICTEntry(wTop, 18, len(s.private), privateOffset); err != nil {
				return err
			}
		}
		top := &index{}
		top.Add(wTop.Bytes())
		topIndex, err := top.Write()
		if err != nil {
			return fmt.Errorf("Top DICT INDEX: %w", err)
		}
		s.topIndex = topIndex

		offset := prefix + len(s.topIndex) + len(s.strings) + len(s.globalSubrs)
		if math.MaxUint32 < offset+len(s.charStrings) {
			return fmt.Errorf("%w: offset too large", ErrUnsupported)
		}
		if offset == charStringsOffset && offset+len(s.charStrings) == privateOffset {
			return nil
		}
		charStringsOffset = offset
		privateOffset = offset + len(s.charStrings)
	}
}

// assemble concatenates the sections in file order.
func (s *cffSections) assemble() []byte {
	w := parse.NewBinaryWriter(make([]byte, 0,
		len(s.header)+len(s.name)+len(s.topIndex)+len(s.strings)+
			len(s.globalSubrs)+len(s.charStrings)+len(s.private)+len(s.localSubrs)))
	w.WriteBytes(s.header)
	w.WriteBytes(s.name)
	w.WriteBytes(s.topIndex)
	w.WriteBytes(s.strings)
	w.WriteBytes(s.globalSubrs)
	w.WriteBytes(s.charStrings)
	w.WriteBytes(s.private)
	w.WriteBytes(s.localSubrs)
	return w.Bytes()
}

// Write serializes the font back to CFF table bytes, recomputing every
// section offset. Only single-font (non-CID) fonts can be written.
func (f *Font) Write() ([]byte, error) {
	if 1 < len(f.fonts.private) || 1 < len(f.fonts.localSubrs) {
		return nil, fmt.Errorf("%w: must contain only one font", ErrUnsupported)
	}

	s := &cffSections{}
	s.header = []byte{1, 0, 4, 1} // major, minor, hdrSize, offSize

	name := &index{}
	name.Add([]byte(f.name))
	nameIndex, err := name.Write()
	if err != nil {
		return nil, fmt.Errorf("Name INDEX: %w", err)
	}
	s.name = nameIndex

	strings := &index{}
	topBody, err := f.top.Write(strings)
	if err != nil {
		return nil, fmt.Errorf("Top DICT: %w", err)
	}

	s.strings, err = strings.Write()
	if err != nil {
		return nil, fmt.Errorf("String INDEX: %w", err)
	}

	s.globalSubrs, err = f.globalSubrs.Write()
	if err != nil {
		return nil, fmt.Errorf("Global Subrs INDEX: %w", err)
	}

	s.charStrings, err = f.charStrings.Write()
	if err != nil {
		return nil, fmt.Errorf("CharStrings INDEX: %w", err)
	}

	hasPrivate := false
	if 0 < len(f.fonts.private) {
		hasPrivate = true
		private, err := f.fonts.private[0].Write()
		if err != nil {
			return nil, fmt.Errorf("Private DICT: %w", err)
		}

		if 0 < len(f.fonts.localSubrs) && 0 < f.fonts.localSubrs[0].Len() {
			localSubrs, err := f.fonts.localSubrs[0].Write()
			if err != nil {
				return nil, fmt.Errorf("Local Subrs INDEX: %w", err)
			}
			s.localSubrs = localSubrs

			// the Subrs offset is relative to the Private DICT and points
			// just past it, so the operand's own size shifts the offset
			subrsOffset := len(private) + 1 // operator byte
			subrsOffset += dictAppendedOffsetSize(subrsOffset)
			wPrivate := parse.NewBinaryWriter(private)
			if err := writeDICTEntry(wPrivate, 19, subrsOffset); err != nil {
				return nil, fmt.Errorf("Private DICT: %w", err)
			}
			private = wPrivate.Bytes()
		}
		s.private = private
	}

	if err := s.recomputeOffsets(topBody, hasPrivate); err != nil {
		return nil, err
	}
	return s.assemble(), nil
}
