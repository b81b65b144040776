package cff

import (
	"math"
	"testing"

	"github.com/tdewolff/parse/v2"
	"github.com/tdewolff/test"
)

func TestDICTNumberRoundTrip(t *testing.T) {
	var tests = []struct {
		v    float64
		size int
	}{
		{0, 1},
		{-107, 1},
		{107, 1},
		{108, 2},
		{1131, 2},
		{-108, 2},
		{-1131, 2},
		{1132, 3},
		{32767, 3},
		{-32768, 3},
		{32768, 5},
		{1000000, 5},
		{-1000000, 5},
		{3.14159, 5},
		{-2.5, 4},
	}
	for _, tt := range tests {
		w := parse.NewBinaryWriter([]byte{})
		var val any = tt.v
		if i := math.Round(tt.v); i == tt.v {
			val = int(i)
		}
		err := writeDICTEntry(w, 6, val)
		test.Error(t, err)
		test.T(t, w.Len(), uint32(tt.size+1)) // operand plus operator byte

		var got float64
		err = parseDICT(w.Bytes(), func(op int, is []int, fs []float64) {
			test.T(t, op, 6)
			got = firstReal(is, fs)
		})
		test.Error(t, err)
		test.T(t, got, tt.v)
	}
}

func TestDICTFloatExponent(t *testing.T) {
	// values that format in exponent notation; the positive exponent sign
	// has no nibble encoding and must not corrupt the byte stream
	var tests = []struct {
		v    float64
		want float64
	}{
		{12345678.5, 1.23457e7}, // six significant digits
		{9876543.21, 9.87654e6},
		{-9876543.21, -9.87654e6},
		{1.23e-5, 1.23e-5},
		{-1.23e-5, -1.23e-5},
	}
	for _, tt := range tests {
		w := parse.NewBinaryWriter([]byte{})
		err := writeDICTEntry(w, 6, tt.v)
		test.Error(t, err)

		var got float64
		err = parseDICT(w.Bytes(), func(op int, is []int, fs []float64) {
			got = firstReal(is, fs)
		})
		test.Error(t, err)
		test.T(t, got, tt.want)
	}
}

func TestDICTTwoByteOperator(t *testing.T) {
	w := parse.NewBinaryWriter([]byte{})
	err := writeDICTEntry(w, 256+7, []float64{0.002, 0, 0, 0.002, 0, 0})
	test.Error(t, err)

	var gotOp int
	var gotArgs []float64
	err = parseDICT(w.Bytes(), func(op int, is []int, fs []float64) {
		gotOp = op
		gotArgs = realsOf(is, fs)
	})
	test.Error(t, err)
	test.T(t, gotOp, 256+7)
	test.T(t, gotArgs, []float64{0.002, 0, 0, 0.002, 0, 0})
}

func TestDICTMalformed(t *testing.T) {
	var tests = []struct {
		name string
		b    []byte
	}{
		{"reserved lead byte", []byte{22, 0}},
		{"lead byte 31", []byte{31}},
		{"lead byte 255", []byte{255}},
		{"truncated int16", []byte{28, 0}},
		{"truncated int32", []byte{29, 0, 0}},
		{"unterminated real", []byte{30, 0x12}},
		{"truncated operator escape", []byte{12}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := parseDICT(tt.b, func(op int, is []int, fs []float64) {})
			test.That(t, err != nil, "must fail")
		})
	}
}

func TestTopDICTRoundTrip(t *testing.T) {
	dict := &topDICT{
		Version:            "001.000",
		Notice:             "Copyright (c) Example Foundry",
		FullName:           "Example Regular",
		FamilyName:         "Example",
		Weight:             "Regular",
		ItalicAngle:        -12.5,
		UnderlinePosition:  -100,
		UnderlineThickness: 50,
		CharstringType:     2,
		FontMatrix:         [6]float64{0.001, 0, 0, 0.001, 0, 0},
		FontBBox:           [4]float64{-50, -200, 1000, 800},
		CIDCount:           8720,
	}

	strings := &index{}
	b, err := dict.Write(strings)
	test.Error(t, err)

	parsed, err := parseTopDICT(b, strings)
	test.Error(t, err)
	test.T(t, parsed.Version, dict.Version)
	test.T(t, parsed.Notice, dict.Notice)
	test.T(t, parsed.FullName, dict.FullName)
	test.T(t, parsed.FamilyName, dict.FamilyName)
	test.T(t, parsed.Weight, dict.Weight)
	test.T(t, parsed.ItalicAngle, dict.ItalicAngle)
	test.T(t, parsed.FontBBox, dict.FontBBox)
	test.T(t, parsed.FontMatrix, dict.FontMatrix)
	test.T(t, parsed.CharstringType, 2)
}

func TestTopDICTUnknownPreserved(t *testing.T) {
	strings := &index{}
	w := parse.NewBinaryWriter([]byte{})
	test.Error(t, writeDICTEntry(w, 2, strings.AddSID([]byte("Example Regular"))))
	test.Error(t, writeDICTEntry(w, 256+40, 7)) // not in the Top DICT schema

	dict, err := parseTopDICT(w.Bytes(), strings)
	test.Error(t, err)
	test.T(t, dict.FullName, "Example Regular")
	test.T(t, len(dict.unknown), 1)
	test.T(t, dict.unknown[0].op, 256+40)
	test.T(t, dict.unknown[0].ints, []int{7})

	strings2 := &index{}
	b, err := dict.Write(strings2)
	test.Error(t, err)
	reparsed, err := parseTopDICT(b, strings2)
	test.Error(t, err)
	test.T(t, len(reparsed.unknown), 1)
	test.T(t, reparsed.unknown[0].op, 256+40)
	test.T(t, reparsed.unknown[0].ints, []int{7})
}

func TestPrivateDICTRoundTrip(t *testing.T) {
	dict := &privateDICT{
		BlueValues:      []float64{-15, 0, 480, 495, 690, 705},
		BlueScale:       0.039625,
		BlueShift:       7,
		BlueFuzz:        1,
		StdHW:           60,
		StdVW:           75,
		StemSnapH:       []float64{55, 60},
		ForceBold:       true,
		ExpansionFactor: 0.06,
		DefaultWidthX:   500,
		NominalWidthX:   600,
	}
	b, err := dict.Write()
	test.Error(t, err)

	parsed, err := parsePrivateDICT(b)
	test.Error(t, err)
	test.T(t, parsed.BlueValues, dict.BlueValues)
	test.T(t, parsed.BlueScale, dict.BlueScale)
	test.T(t, parsed.StdHW, dict.StdHW)
	test.T(t, parsed.StdVW, dict.StdVW)
	test.T(t, parsed.StemSnapH, dict.StemSnapH)
	test.T(t, parsed.ForceBold, true)
	test.T(t, parsed.DefaultWidthX, dict.DefaultWidthX)
	test.T(t, parsed.NominalWidthX, dict.NominalWidthX)
}

func TestPrivateDICTDefaults(t *testing.T) {
	parsed, err := parsePrivateDICT([]byte{})
	test.Error(t, err)
	test.T(t, parsed.BlueScale, 0.039625)
	test.T(t, parsed.BlueShift, 7.0)
	test.T(t, parsed.BlueFuzz, 1.0)
	test.T(t, parsed.ExpansionFactor, 0.06)
	test.T(t, parsed.DefaultWidthX, 0.0)
	test.T(t, parsed.NominalWidthX, 0.0)
}

func TestDICTAppendedOffsetSize(t *testing.T) {
	test.T(t, dictAppendedOffsetSize(50), 1)   // 51 fits one byte
	test.T(t, dictAppendedOffsetSize(106), 1)  // 107 still fits
	test.T(t, dictAppendedOffsetSize(107), 2)  // 108 needs two bytes
	test.T(t, dictAppendedOffsetSize(1130), 3) // 1132 needs three
	test.T(t, dictAppendedOffsetSize(40000), 5)
}
