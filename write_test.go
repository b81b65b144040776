package cff

import (
	"errors"
	"testing"

	"github.com/tdewolff/test"
)

func buildTestFont(t *testing.T, localSubrs *index, glyphOps Operations) *Font {
	t.Helper()
	notdef, err := Operations{{Op: opEndchar}}.Write()
	test.Error(t, err)
	glyph, err := glyphOps.Write()
	test.Error(t, err)

	charStrings := &index{}
	charStrings.Add(notdef)
	charStrings.Add(glyph)

	if localSubrs == nil {
		localSubrs = &index{}
	}
	return &Font{
		name: "Test-Regular",
		top: &topDICT{
			FullName:           "Test Regular",
			FamilyName:         "Test",
			Weight:             "Regular",
			UnderlinePosition:  -100,
			UnderlineThickness: 50,
			CharstringType:     2,
			FontMatrix:         [6]float64{0.001, 0, 0, 0.001, 0, 0},
			FontBBox:           [4]float64{0, 0, 250, 100},
			CIDCount:           8720,
		},
		strings:     &index{},
		globalSubrs: &index{},
		charStrings: charStrings,
		fonts: &fontIndex{
			private: []*privateDICT{{
				BlueScale:       0.039625,
				BlueShift:       7,
				BlueFuzz:        1,
				ExpansionFactor: 0.06,
				DefaultWidthX:   500,
			}},
			localSubrs: []*index{localSubrs},
			first:      []uint32{0, 2},
			fd:         []uint16{0},
		},
	}
}

func TestWriteParseRoundTrip(t *testing.T) {
	code, err := EncodeCharString(twoContours(), 600, true)
	test.Error(t, err)
	ops, err := ParseOperations(code)
	test.Error(t, err)
	font := buildTestFont(t, nil, ops)

	b, err := font.Write()
	test.Error(t, err)

	parsed, err := Parse(b)
	test.Error(t, err)
	test.T(t, parsed.Name(), "Test-Regular")
	test.T(t, parsed.NumGlyphs(), uint16(2))
	test.T(t, parsed.TopDICT().FullName, "Test Regular")
	test.T(t, parsed.TopDICT().FontBBox, [4]float64{0, 0, 250, 100})

	private, err := parsed.PrivateDICT(1)
	test.Error(t, err)
	test.T(t, private.DefaultWidthX, 500.0)

	g, err := parsed.Glyph(1)
	test.Error(t, err)
	test.T(t, g.GlyphID(), uint16(1))
	test.T(t, g.IsSimple(), true)
	test.T(t, g.IsCompound(), false)
	test.T(t, g.IsEmpty(), false)
	test.T(t, g.AdvanceWidth(), 600.0)
	test.T(t, g.Path(), twoContours())
	xmin, ymin, xmax, ymax := g.BoundingBox()
	test.T(t, [4]float64{xmin, ymin, xmax, ymax}, [4]float64{0, 0, 250, 100})

	notdef, err := parsed.Glyph(0)
	test.Error(t, err)
	test.T(t, notdef.IsEmpty(), true)
	test.T(t, notdef.AdvanceWidth(), 500.0) // Private DICT default

	// serialization must be stable
	b2, err := parsed.Write()
	test.Error(t, err)
	test.T(t, b2, b)
}

func TestWriteGlyphNames(t *testing.T) {
	font := buildTestFont(t, nil, Operations{{Op: opEndchar}})
	b, err := font.Write()
	test.Error(t, err)
	parsed, err := Parse(b)
	test.Error(t, err)

	// no charset: the identity mapping onto the standard strings
	test.T(t, parsed.GlyphName(0), ".notdef")
	test.T(t, parsed.GlyphName(1), "space")
	test.T(t, parsed.FindGlyphName("space"), uint16(1))
	test.T(t, parsed.FindGlyphName("no such glyph"), uint16(0))
}

func TestWriteLocalSubrs(t *testing.T) {
	subr, err := Operations{
		{Op: opRlineto, Args: []float64{100, 0}},
		{Op: opReturn},
	}.Write()
	test.Error(t, err)
	localSubrs := &index{}
	localSubrs.Add(subr)

	font := buildTestFont(t, localSubrs, Operations{
		{Op: opRmoveto, Args: []float64{0, 0}},
		{Op: opCallsubr, Args: []float64{-107}},
		{Op: opEndchar},
	})
	b, err := font.Write()
	test.Error(t, err)

	parsed, err := Parse(b)
	test.Error(t, err)
	path := &Path{}
	width, err := parsed.GlyphPath(path, 1)
	test.Error(t, err)
	test.T(t, width, 500.0)
	test.T(t, path, &Path{[]PathCmd{
		{MoveToCmd, []float64{0, 0}},
		{LineToCmd, []float64{100, 0}},
		{CloseCmd, nil},
	}})
}

func TestWriteReplaceCharStrings(t *testing.T) {
	font := buildTestFont(t, nil, Operations{
		{Op: opRmoveto, Args: []float64{0, 0}},
		{Op: opRlineto, Args: []float64{10, 0}},
		{Op: opEndchar},
	})

	replacement, err := EncodeCharString(twoContours(), 0, false)
	test.Error(t, err)
	err = font.ReplaceCharStrings(map[uint16][]byte{1: replacement})
	test.Error(t, err)
	test.T(t, font.NumGlyphs(), uint16(2))

	b, err := font.Write()
	test.Error(t, err)
	parsed, err := Parse(b)
	test.Error(t, err)

	g, err := parsed.Glyph(1)
	test.Error(t, err)
	test.T(t, g.Path(), twoContours())
}

func TestWriteCIDRefused(t *testing.T) {
	font := buildTestFont(t, nil, Operations{{Op: opEndchar}})
	font.fonts.private = append(font.fonts.private, &privateDICT{})
	font.fonts.localSubrs = append(font.fonts.localSubrs, &index{})

	_, err := font.Write()
	test.That(t, errors.Is(err, ErrUnsupported), "CID-keyed fonts cannot be written")
}

func TestParseMalformedHeader(t *testing.T) {
	var tests = []struct {
		name string
		b    []byte
	}{
		{"empty", nil},
		{"short", []byte{1, 0}},
		{"bad version", []byte{2, 0, 4, 1}},
		{"bad hdrSize", []byte{1, 0, 3, 1}},
		{"bad offSize", []byte{1, 0, 4, 5}},
		{"missing indexes", []byte{1, 0, 4, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.b)
			test.That(t, err != nil, "must fail")
		})
	}
}

func TestParseBadGlyphID(t *testing.T) {
	font := buildTestFont(t, nil, Operations{{Op: opEndchar}})
	b, err := font.Write()
	test.Error(t, err)
	parsed, err := Parse(b)
	test.Error(t, err)

	_, err = parsed.Glyph(2)
	test.That(t, err != nil, "must fail on out-of-range glyph ID")
	test.T(t, parsed.CharString(2), []byte(nil))
}
