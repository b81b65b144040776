package cff

import "math"

// Pather is an interface to append a glyph's path to, such as canvas.Path.
type Pather interface {
	MoveTo(float64, float64)
	LineTo(float64, float64)
	QuadTo(float64, float64, float64, float64)
	CubeTo(float64, float64, float64, float64, float64, float64)
	Close()
}

// PathOp is one drawing command kind.
type PathOp uint8

// see PathCmd
const (
	MoveToCmd PathOp = iota
	LineToCmd
	QuadToCmd
	CubeToCmd
	CloseCmd
)

// PathCmd is one drawing command with absolute coordinates. Args holds the
// control points followed by the end point, (x,y) interleaved.
type PathCmd struct {
	Op   PathOp
	Args []float64
}

// Path records drawing commands. It implements Pather and is the input to
// the charstring encoder.
type Path struct {
	Cmds []PathCmd
}

func (p *Path) MoveTo(x, y float64) {
	p.Cmds = append(p.Cmds, PathCmd{MoveToCmd, []float64{x, y}})
}

func (p *Path) LineTo(x, y float64) {
	p.Cmds = append(p.Cmds, PathCmd{LineToCmd, []float64{x, y}})
}

func (p *Path) QuadTo(cpx, cpy, x, y float64) {
	p.Cmds = append(p.Cmds, PathCmd{QuadToCmd, []float64{cpx, cpy, x, y}})
}

func (p *Path) CubeTo(cpx1, cpy1, cpx2, cpy2, x, y float64) {
	p.Cmds = append(p.Cmds, PathCmd{CubeToCmd, []float64{cpx1, cpy1, cpx2, cpy2, x, y}})
}

func (p *Path) Close() {
	p.Cmds = append(p.Cmds, PathCmd{CloseCmd, nil})
}

// Empty returns true when the path draws nothing.
func (p *Path) Empty() bool {
	for _, cmd := range p.Cmds {
		if cmd.Op != CloseCmd {
			return false
		}
	}
	return true
}

// Replay appends the recorded commands to another pather.
func (p *Path) Replay(dst Pather) {
	for _, cmd := range p.Cmds {
		a := cmd.Args
		switch cmd.Op {
		case MoveToCmd:
			dst.MoveTo(a[0], a[1])
		case LineToCmd:
			dst.LineTo(a[0], a[1])
		case QuadToCmd:
			dst.QuadTo(a[0], a[1], a[2], a[3])
		case CubeToCmd:
			dst.CubeTo(a[0], a[1], a[2], a[3], a[4], a[5])
		case CloseCmd:
			dst.Close()
		}
	}
}

// bboxPather accumulates the control-point bounding box of a path.
type bboxPather struct {
	XMin, YMin, XMax, YMax float64
	any                    bool
}

func (p *bboxPather) point(x, y float64) {
	if !p.any {
		p.XMin, p.XMax, p.YMin, p.YMax = x, x, y, y
		p.any = true
		return
	}
	p.XMin = math.Min(p.XMin, x)
	p.XMax = math.Max(p.XMax, x)
	p.YMin = math.Min(p.YMin, y)
	p.YMax = math.Max(p.YMax, y)
}

func (p *bboxPather) MoveTo(x, y float64) {
	p.point(x, y)
}

func (p *bboxPather) LineTo(x, y float64) {
	p.point(x, y)
}

func (p *bboxPather) QuadTo(cpx, cpy, x, y float64) {
	p.point(cpx, cpy)
	p.point(x, y)
}

func (p *bboxPather) CubeTo(cpx1, cpy1, cpx2, cpy2, x, y float64) {
	p.point(cpx1, cpy1)
	p.point(cpx2, cpy2)
	p.point(x, y)
}

func (p *bboxPather) Close() {
}

// Glyph exposes one interpreted CFF glyph to the glyph-access layer with the
// same shape as TrueType glyph objects. CFF glyphs are always simple; the
// compound case does not exist.
type Glyph struct {
	font    *Font
	glyphID uint16
	path    *Path
	width   float64
}

// GlyphID returns the glyph index this glyph was interpreted from.
func (g *Glyph) GlyphID() uint16 {
	return g.glyphID
}

func (g *Glyph) IsSimple() bool {
	return true
}

func (g *Glyph) IsCompound() bool {
	return false
}

// IsEmpty returns true when the glyph draws no contours.
func (g *Glyph) IsEmpty() bool {
	return g.path.Empty()
}

// BoundingBox returns (xmin, ymin, xmax, ymax) of the glyph's outline in
// font units. Empty glyphs have a zero bounding box.
func (g *Glyph) BoundingBox() (float64, float64, float64, float64) {
	bbox := &bboxPather{}
	g.path.Replay(bbox)
	return bbox.XMin, bbox.YMin, bbox.XMax, bbox.YMax
}

// AdvanceWidth returns the glyph's advance width in font units, resolved
// from the charstring or the Private DICT defaults.
func (g *Glyph) AdvanceWidth() float64 {
	return g.width
}

// Name returns the glyph's name from the charset, or the empty string.
func (g *Glyph) Name() string {
	return g.font.GlyphName(g.glyphID)
}

// Path returns the glyph's recorded drawing commands.
func (g *Glyph) Path() *Path {
	return g.path
}

// ToPath appends the glyph's drawing commands to p.
func (g *Glyph) ToPath(p Pather) {
	g.path.Replay(p)
}
