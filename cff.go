// Package cff parses, interprets, edits, and re-serializes the Compact Font
// Format (CFF) table embedded in OpenType fonts: the INDEX container format,
// the DICT dictionary encoding, and Type 2 charstring bytecode.
package cff

import (
	"fmt"

	"github.com/tdewolff/parse/v2"
)

// Font is a parsed CFF font program.
type Font struct {
	name        string
	top         *topDICT
	strings     *index
	globalSubrs *index
	charStrings *index
	fonts       *fontIndex
	charset     []uint16 // glyph ID to SID, nil for the identity charset
}

// Parse parses the raw bytes of a CFF table.
func Parse(b []byte) (*Font, error) {
	r := parse.NewBinaryReader(b)
	if r.Len() < 4 {
		return nil, fmt.Errorf("CFF: bad header")
	}
	major := r.ReadUint8()
	minor := r.ReadUint8()
	if major != 1 || minor != 0 {
		return nil, fmt.Errorf("CFF: bad version %d.%d", major, minor)
	}
	hdrSize := r.ReadUint8()
	if hdrSize < 4 {
		return nil, fmt.Errorf("CFF: bad hdrSize")
	}
	offSize := r.ReadUint8()
	if offSize == 0 || 4 < offSize {
		return nil, fmt.Errorf("CFF: bad offSize")
	}
	r.Seek(uint32(hdrSize))

	nameIndex, err := parseIndex(r)
	if err != nil {
		return nil, fmt.Errorf("CFF: Name INDEX: %w", err)
	} else if nameIndex.Len() != 1 {
		return nil, fmt.Errorf("CFF: Name INDEX: bad count")
	}

	topIndex, err := parseIndex(r)
	if err != nil {
		return nil, fmt.Errorf("CFF: Top DICT INDEX: %w", err)
	} else if topIndex.Len() != nameIndex.Len() {
		return nil, fmt.Errorf("CFF: Top DICT INDEX: bad count")
	}

	stringIndex, err := parseIndex(r)
	if err != nil {
		return nil, fmt.Errorf("CFF: String INDEX: %w", err)
	}

	globalSubrs, err := parseIndex(r)
	if err != nil {
		return nil, fmt.Errorf("CFF: Global Subrs INDEX: %w", err)
	}

	top, err := parseTopDICT(topIndex.Get(0), stringIndex)
	if err != nil {
		return nil, fmt.Errorf("CFF: %w", err)
	} else if top.CharstringType != 2 {
		return nil, fmt.Errorf("CFF: Type %d charstring format not supported", top.CharstringType)
	}

	if top.CharStrings < 0 || len(b) < top.CharStrings {
		return nil, fmt.Errorf("CFF: bad CharStrings INDEX offset")
	}
	r.Seek(uint32(top.CharStrings))
	charStrings, err := parseIndex(r)
	if err != nil {
		return nil, fmt.Errorf("CFF: CharStrings INDEX: %w", err)
	}

	font := &Font{
		name:        string(nameIndex.Get(0)),
		top:         top,
		strings:     stringIndex,
		globalSubrs: globalSubrs,
		charStrings: charStrings,
	}

	if !top.IsCID {
		if top.PrivateOffset < 0 || len(b) < top.PrivateOffset || len(b)-top.PrivateOffset < top.PrivateLength {
			return nil, fmt.Errorf("CFF: bad Private DICT offset")
		}
		private, err := parsePrivateDICT(b[top.PrivateOffset : top.PrivateOffset+top.PrivateLength])
		if err != nil {
			return nil, fmt.Errorf("CFF: %w", err)
		}

		localSubrs := &index{}
		if private.Subrs != 0 {
			if private.Subrs < 0 || len(b)-top.PrivateOffset < private.Subrs {
				return nil, fmt.Errorf("CFF: bad Local Subrs INDEX offset")
			}
			r.Seek(uint32(top.PrivateOffset + private.Subrs))
			localSubrs, err = parseIndex(r)
			if err != nil {
				return nil, fmt.Errorf("CFF: Local Subrs INDEX: %w", err)
			}
		}
		font.fonts = &fontIndex{
			private:    []*privateDICT{private},
			localSubrs: []*index{localSubrs},
			first:      []uint32{0, uint32(charStrings.Len())},
			fd:         []uint16{0},
		}
	} else {
		fonts, err := parseFontIndex(b, top.FDArray, top.FDSelect, charStrings.Len())
		if err != nil {
			return nil, fmt.Errorf("CFF: %w", err)
		}
		font.fonts = fonts
	}

	if err := font.parseCharset(b); err != nil {
		return nil, fmt.Errorf("CFF: %w", err)
	}
	return font, nil
}

// Name returns the PostScript font name.
func (f *Font) Name() string {
	return f.name
}

// TopDICT returns the parsed Top DICT.
func (f *Font) TopDICT() *topDICT {
	return f.top
}

// PrivateDICT returns the Private DICT applying to the given glyph.
func (f *Font) PrivateDICT(glyphID uint16) (*privateDICT, error) {
	return f.fonts.GetPrivate(uint32(glyphID))
}

// NumGlyphs returns the number of charstrings.
func (f *Font) NumGlyphs() uint16 {
	return uint16(f.charStrings.Len())
}

// CharString returns the raw charstring bytecode for a glyph, or nil when
// the glyph ID is out of range.
func (f *Font) CharString(glyphID uint16) []byte {
	return f.charStrings.Get(glyphID)
}

// GlyphName returns the name of the glyph from the charset. It returns an
// empty string when no name exists.
func (f *Font) GlyphName(glyphID uint16) string {
	if f.charset == nil {
		return f.strings.GetSID(int(glyphID))
	}
	if int(glyphID) < len(f.charset) {
		return f.strings.GetSID(int(f.charset[glyphID]))
	}
	return ""
}

// FindGlyphName returns the glyph ID for a given glyph name. When the name
// is not defined it returns 0.
func (f *Font) FindGlyphName(name string) uint16 {
	n := int(f.NumGlyphs())
	for glyphID := 0; glyphID < n; glyphID++ {
		if f.GlyphName(uint16(glyphID)) == name {
			return uint16(glyphID)
		}
	}
	return 0
}

// GlyphPath interprets the glyph's charstring and draws its contours to the
// pather. It returns the glyph's advance width in font units.
func (f *Font) GlyphPath(p Pather, glyphID uint16) (float64, error) {
	width, _, err := f.interpret(p, glyphID)
	return width, err
}

// Glyph interprets the glyph's charstring into a Glyph adapter.
func (f *Font) Glyph(glyphID uint16) (*Glyph, error) {
	path := &Path{}
	width, _, err := f.interpret(path, glyphID)
	if err != nil {
		return nil, err
	}
	return &Glyph{
		font:    f,
		glyphID: glyphID,
		path:    path,
		width:   width,
	}, nil
}

// interpret runs the Type 2 interpreter over one charstring. It returns the
// resolved advance width and the stem hint count.
func (f *Font) interpret(p Pather, glyphID uint16) (float64, int, error) {
	charString := f.charStrings.Get(glyphID)
	if charString == nil {
		return 0, 0, fmt.Errorf("CFF: bad glyph ID %d", glyphID)
	} else if MaxCharStringLength < len(charString) {
		return 0, 0, fmt.Errorf("%w: glyph %d: charstring too long", ErrCorruptedCharString, glyphID)
	}
	private, err := f.fonts.GetPrivate(uint32(glyphID))
	if err != nil {
		return 0, 0, fmt.Errorf("CFF: %w", err)
	}
	localSubrs, err := f.fonts.GetLocalSubrs(uint32(glyphID))
	if err != nil {
		return 0, 0, fmt.Errorf("CFF: %w", err)
	}

	c := &csContext{
		glyphID:       glyphID,
		localSubrs:    localSubrs,
		globalSubrs:   f.globalSubrs,
		defaultWidthX: private.DefaultWidthX,
		nominalWidthX: private.NominalWidthX,
		p:             p,
		width:         private.DefaultWidthX,
	}
	done, err := c.execute(charString)
	if err != nil {
		return 0, 0, err
	} else if !done {
		return 0, 0, fmt.Errorf("%w: glyph %d: missing endchar", ErrCorruptedCharString, glyphID)
	}
	return c.width, c.stems, nil
}

// parseCharset reads the glyph ID to SID mapping. The predefined charsets
// keep charset nil; ISOAdobe is the identity mapping.
func (f *Font) parseCharset(b []byte) error {
	if f.top.Charset < 3 {
		// 0: ISOAdobe, 1: Expert, 2: ExpertSubset
		return nil
	} else if len(b) < f.top.Charset {
		return fmt.Errorf("bad charset offset")
	}

	nGlyphs := f.charStrings.Len()
	r := parse.NewBinaryReader(b)
	r.Seek(uint32(f.top.Charset))
	if r.Len() < 1 {
		return fmt.Errorf("charset: bad data")
	}

	charset := make([]uint16, nGlyphs)
	format := r.ReadUint8()
	switch format {
	case 0:
		if r.Len() < 2*uint32(nGlyphs-1) {
			return fmt.Errorf("charset: bad data")
		}
		for i := 1; i < nGlyphs; i++ {
			charset[i] = r.ReadUint16()
		}
	case 1, 2:
		for i := 1; i < nGlyphs; {
			if r.Len() < 3 {
				return fmt.Errorf("charset: bad data")
			}
			sid := r.ReadUint16()
			var nLeft int
			if format == 1 {
				nLeft = int(r.ReadUint8())
			} else {
				if r.Len() < 2 {
					return fmt.Errorf("charset: bad data")
				}
				nLeft = int(r.ReadUint16())
			}
			for j := 0; j <= nLeft && i < nGlyphs; j++ {
				charset[i] = sid + uint16(j)
				i++
			}
		}
	default:
		return fmt.Errorf("charset: bad format %d", format)
	}
	f.charset = charset
	return nil
}

// fontIndex maps glyph IDs to their Private DICT and Local Subrs INDEX. For
// non-CID fonts there is a single entry covering all glyphs; CID-keyed fonts
// select through FDSelect.
type fontIndex struct {
	private    []*privateDICT
	localSubrs []*index

	fds   []uint8 // fds or the other two are used
	first []uint32
	fd    []uint16
}

func (t *fontIndex) Index(glyphID uint32) (uint16, bool) {
	if t.fds != nil {
		if len(t.fds) <= int(glyphID) {
			return 0, false
		}
		return uint16(t.fds[glyphID]), true
	} else if t.first[len(t.first)-1] <= glyphID {
		return 0, false
	}

	i := 0
	for t.first[i+1] <= glyphID {
		i++
	}
	return t.fd[i], true
}

func (t *fontIndex) GetPrivate(glyphID uint32) (*privateDICT, error) {
	i, ok := t.Index(glyphID)
	if !ok {
		return nil, fmt.Errorf("bad glyph ID %d", glyphID)
	}
	return t.private[i], nil
}

func (t *fontIndex) GetLocalSubrs(glyphID uint32) (*index, error) {
	i, ok := t.Index(glyphID)
	if !ok {
		return nil, fmt.Errorf("bad glyph ID %d", glyphID)
	}
	return t.localSubrs[i], nil
}

func parseFontIndex(b []byte, fdArray, fdSelect, nGlyphs int) (*fontIndex, error) {
	if fdArray < 0 || len(b) < fdArray {
		return nil, fmt.Errorf("bad Font INDEX offset")
	}

	r := parse.NewBinaryReader(b)
	r.Seek(uint32(fdArray))
	fontIdx, err := parseIndex(r)
	if err != nil {
		return nil, fmt.Errorf("Font INDEX: %w", err)
	}

	fonts := &fontIndex{}
	fonts.private = make([]*privateDICT, fontIdx.Len())
	fonts.localSubrs = make([]*index, fontIdx.Len())
	for i := 0; i < fontIdx.Len(); i++ {
		fontDICT := struct {
			privateOffset int
			privateLength int
		}{}
		err := parseDICT(fontIdx.Get(uint16(i)), func(op int, is []int, fs []float64) {
			if op == 18 && 2 <= len(is) {
				fontDICT.privateLength = is[0]
				fontDICT.privateOffset = is[1]
			}
		})
		if err != nil {
			return nil, fmt.Errorf("Font DICT: %w", err)
		}
		if fontDICT.privateOffset < 0 || len(b) < fontDICT.privateOffset ||
			len(b)-fontDICT.privateOffset < fontDICT.privateLength {
			return nil, fmt.Errorf("Font DICT: bad Private DICT offset")
		}
		private, err := parsePrivateDICT(b[fontDICT.privateOffset : fontDICT.privateOffset+fontDICT.privateLength])
		if err != nil {
			return nil, err
		}
		fonts.private[i] = private

		fonts.localSubrs[i] = &index{}
		if private.Subrs != 0 {
			if private.Subrs < 0 || len(b)-fontDICT.privateOffset < private.Subrs {
				return nil, fmt.Errorf("bad Local Subrs INDEX offset")
			}
			r.Seek(uint32(fontDICT.privateOffset + private.Subrs))
			fonts.localSubrs[i], err = parseIndex(r)
			if err != nil {
				return nil, fmt.Errorf("Local Subrs INDEX: %w", err)
			}
		}
	}

	if fdSelect < 0 || len(b) < fdSelect {
		return nil, fmt.Errorf("FDSelect: bad offset")
	}
	r.Seek(uint32(fdSelect))
	if r.Len() < 1 {
		return nil, fmt.Errorf("FDSelect: bad data")
	}
	format := r.ReadUint8()
	if format == 0 {
		if r.Len() < uint32(nGlyphs) {
			return nil, fmt.Errorf("FDSelect: bad data")
		}
		fonts.fds = make([]uint8, nGlyphs)
		for i := 0; i < nGlyphs; i++ {
			fonts.fds[i] = r.ReadUint8()
		}
	} else if format == 3 {
		if r.Len() < 2 {
			return nil, fmt.Errorf("FDSelect: bad data")
		}
		nRanges := r.ReadUint16()
		if r.Len() < 3*uint32(nRanges)+2 {
			return nil, fmt.Errorf("FDSelect: bad data")
		}
		fonts.first = make([]uint32, nRanges+1)
		fonts.fd = make([]uint16, nRanges)
		for i := 0; i < int(nRanges); i++ {
			fonts.first[i] = uint32(r.ReadUint16())
			fonts.fd[i] = uint16(r.ReadUint8())
		}
		fonts.first[nRanges] = uint32(r.ReadUint16())
	} else {
		return nil, fmt.Errorf("FDSelect: bad format %d", format)
	}
	return fonts, nil
}
