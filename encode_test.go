package cff

import (
	"errors"
	"testing"

	"github.com/tdewolff/test"
)

func twoContours() *Path {
	p := &Path{}
	p.MoveTo(0, 0)
	p.LineTo(100, 0)
	p.LineTo(100, 100)
	p.LineTo(0, 100)
	p.Close()
	p.MoveTo(150, 0)
	p.LineTo(200, 100)
	p.LineTo(250, 0)
	p.Close()
	return p
}

// decode interprets freshly encoded bytecode with the given width defaults.
func decode(t *testing.T, code []byte, defaultW, nominalW float64) (*Path, float64) {
	t.Helper()
	path := &Path{}
	c := &csContext{
		glyphID:       1,
		localSubrs:    &index{},
		globalSubrs:   &index{},
		defaultWidthX: defaultW,
		nominalWidthX: nominalW,
		p:             path,
		width:         defaultW,
	}
	done, err := c.execute(code)
	test.Error(t, err)
	test.T(t, done, true)
	return path, c.width
}

func TestEncodeRoundTrip(t *testing.T) {
	path := twoContours()
	code, err := EncodeCharString(path, 600, true)
	test.Error(t, err)

	got, width := decode(t, code, 500, 0)
	test.T(t, width, 600.0)
	test.T(t, got, path)

	bbox := &bboxPather{}
	got.Replay(bbox)
	test.T(t, bbox.XMin, 0.0)
	test.T(t, bbox.YMin, 0.0)
	test.T(t, bbox.XMax, 250.0)
	test.T(t, bbox.YMax, 100.0)
}

func TestEncodeNoWidth(t *testing.T) {
	path := &Path{}
	path.MoveTo(10, 20)
	path.LineTo(30, 20)
	path.Close()

	code, err := EncodeCharString(path, 0, false)
	test.Error(t, err)

	got, width := decode(t, code, 500, 0)
	test.T(t, width, 500.0) // falls back to defaultWidthX
	test.T(t, got, path)
}

func TestEncodeCurves(t *testing.T) {
	path := &Path{}
	path.MoveTo(0, 0)
	path.CubeTo(0, 55, 45, 100, 100, 100)
	path.LineTo(100, 0)
	path.Close()

	code, err := EncodeCharString(path, 0, false)
	test.Error(t, err)

	got, _ := decode(t, code, 0, 0)
	test.T(t, got, path)
}

func TestEncodeRounding(t *testing.T) {
	path := &Path{}
	path.MoveTo(0.4, 0)
	path.LineTo(10.6, 0.3)
	path.Close()

	code, err := EncodeCharString(path, 0, false)
	test.Error(t, err)

	got, _ := decode(t, code, 0, 0)
	test.T(t, got.Cmds[0], PathCmd{MoveToCmd, []float64{0, 0}})
	test.T(t, got.Cmds[1], PathCmd{LineToCmd, []float64{11, 0}})
}

func TestEncodeMovetoForms(t *testing.T) {
	path := &Path{}
	path.MoveTo(50, 0) // hmoveto
	path.Close()
	path.MoveTo(50, 80) // vmoveto
	path.Close()
	path.MoveTo(120, 40) // rmoveto
	path.Close()

	code, err := EncodeCharString(path, 0, false)
	test.Error(t, err)

	ops, err := ParseOperations(code)
	test.Error(t, err)
	test.T(t, ops[0].Op, opHmoveto)
	test.T(t, ops[1].Op, opVmoveto)
	test.T(t, ops[2].Op, opRmoveto)
	test.T(t, ops[3].Op, opEndchar)
}

func TestEncodeQuadUnsupported(t *testing.T) {
	path := &Path{}
	path.MoveTo(0, 0)
	path.QuadTo(50, 100, 100, 0)
	path.Close()

	_, err := EncodeCharString(path, 0, false)
	test.That(t, errors.Is(err, ErrUnsupported), "quadratic curves cannot be represented")
}

func TestEncodeEmpty(t *testing.T) {
	code, err := EncodeCharString(&Path{}, 0, false)
	test.Error(t, err)
	test.T(t, code, []byte{opEndchar})

	got, _ := decode(t, code, 0, 0)
	test.T(t, got.Empty(), true)
}
