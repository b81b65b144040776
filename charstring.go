package cff

import (
	"fmt"
	"math"

	"github.com/tdewolff/parse/v2"
)

// Type 2 charstring operators. Two-byte operators (escape 12) are 256+b1.
const (
	opHstem      = 1
	opVstem      = 3
	opVmoveto    = 4
	opRlineto    = 5
	opHlineto    = 6
	opVlineto    = 7
	opRrcurveto  = 8
	opCallsubr   = 10
	opReturn     = 11
	opEndchar    = 14
	opHstemhm    = 18
	opHintmask   = 19
	opCntrmask   = 20
	opRmoveto    = 21
	opHmoveto    = 22
	opVstemhm    = 23
	opRcurveline = 24
	opRlinecurve = 25
	opVvcurveto  = 26
	opHhcurveto  = 27
	opCallgsubr  = 29
	opVhcurveto  = 30
	opHvcurveto  = 31
	opAnd        = 256 + 3
	opOr         = 256 + 4
	opNot        = 256 + 5
	opAbs        = 256 + 9
	opAdd        = 256 + 10
	opSub        = 256 + 11
	opDiv        = 256 + 12
	opNeg        = 256 + 14
	opEq         = 256 + 15
	opDrop       = 256 + 18
	opPut        = 256 + 20
	opGet        = 256 + 21
	opIfelse     = 256 + 22
	opRandom     = 256 + 23
	opMul        = 256 + 24
	opSqrt       = 256 + 26
	opDup        = 256 + 27
	opExch       = 256 + 28
	opIndex      = 256 + 29
	opRoll       = 256 + 30
	opHflex      = 256 + 34
	opFlex       = 256 + 35
	opHflex1     = 256 + 36
	opFlex1      = 256 + 37
)

// maskSize is the number of hintmask/cntrmask bytes for a stem count.
func maskSize(stems int) int {
	return (stems + 7) / 8
}

// csContext is the state of one top-level charstring interpretation,
// including nested subroutine calls. A fresh context is used per run, so
// separate glyphs can be interpreted concurrently over shared read-only
// subroutine INDEXes.
type csContext struct {
	glyphID     uint16
	localSubrs  *index
	globalSubrs *index

	defaultWidthX float64
	nominalWidthX float64

	p        Pather
	stack    []float64
	trans    []float64
	x, y     float64
	width    float64
	hasWidth bool
	stems    int
	depth    int
	open     bool
}

func (c *csContext) errf(r *parse.BinaryReader, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	return fmt.Errorf("%w: glyph %d at %d: %s", ErrCorruptedCharString, c.glyphID, r.Pos(), msg)
}

// readCharStringNumber decodes one operand with lead byte b0. Byte 255
// introduces a 16.16 fixed-point value.
func readCharStringNumber(r *parse.BinaryReader, b0 int) (float64, error) {
	if b0 == 28 {
		if r.Len() < 2 {
			return 0, fmt.Errorf("%w: truncated operand at %d", ErrCorruptedCharString, r.Pos())
		}
		return float64(r.ReadInt16()), nil
	} else if b0 < 247 {
		return float64(b0 - 139), nil
	} else if b0 < 251 {
		if r.Len() < 1 {
			return 0, fmt.Errorf("%w: truncated operand at %d", ErrCorruptedCharString, r.Pos())
		}
		return float64((b0-247)*256 + int(r.ReadUint8()) + 108), nil
	} else if b0 < 255 {
		if r.Len() < 1 {
			return 0, fmt.Errorf("%w: truncated operand at %d", ErrCorruptedCharString, r.Pos())
		}
		return float64(-(b0-251)*256 - int(r.ReadUint8()) - 108), nil
	}
	if r.Len() < 4 {
		return 0, fmt.Errorf("%w: truncated operand at %d", ErrCorruptedCharString, r.Pos())
	}
	return float64(r.ReadInt32()) / 65536.0, nil
}

// resolveWidth fires on the first stack-clearing operator: a single operand
// beyond the operator's arity is the width delta against nominalWidthX.
func (c *csContext) resolveWidth(op int) {
	if c.hasWidth {
		return
	}
	c.hasWidth = true
	extra := false
	switch op {
	case opRmoveto:
		extra = 2 < len(c.stack)
	case opHmoveto, opVmoveto:
		extra = 1 < len(c.stack)
	case opHstem, opVstem, opHstemhm, opVstemhm, opHintmask, opCntrmask:
		extra = len(c.stack)%2 == 1
	case opEndchar:
		extra = len(c.stack) == 1 || 4 < len(c.stack)
	}
	if extra {
		c.width = c.nominalWidthX + c.stack[0]
		c.stack = append(c.stack[:0], c.stack[1:]...)
	}
}

func (c *csContext) moveTo(dx, dy float64) {
	if c.open {
		c.p.Close()
	}
	c.open = true
	c.x += dx
	c.y += dy
	c.p.MoveTo(c.x, c.y)
}

func (c *csContext) lineTo(dx, dy float64) {
	c.x += dx
	c.y += dy
	c.p.LineTo(c.x, c.y)
}

func (c *csContext) curveTo(dxa, dya, dxb, dyb, dxc, dyc float64) {
	cpx1 := c.x + dxa
	cpy1 := c.y + dya
	cpx2 := cpx1 + dxb
	cpy2 := cpy1 + dyb
	c.x = cpx2 + dxc
	c.y = cpy2 + dyc
	c.p.CubeTo(cpx1, cpy1, cpx2, cpy2, c.x, c.y)
}

func (c *csContext) addStems() {
	c.stems += len(c.stack) / 2
}

// execute runs one instruction stream. It returns true when endchar was
// reached, which terminates the whole program even inside a subroutine.
func (c *csContext) execute(code []byte) (bool, error) {
	r := parse.NewBinaryReader(code)
	for 0 < r.Len() {
		b0 := int(r.ReadUint8())
		if 32 <= b0 || b0 == 28 {
			v, err := readCharStringNumber(r, b0)
			if err != nil {
				return false, fmt.Errorf("glyph %d: %w", c.glyphID, err)
			}
			if maxOperandStack <= len(c.stack) {
				return false, c.errf(r, "operand stack overflow")
			}
			c.stack = append(c.stack, v)
			continue
		}
		if b0 == 12 {
			if r.Len() < 1 {
				return false, c.errf(r, "truncated operator")
			}
			b0 = 256 + int(r.ReadUint8())
		}

		switch b0 {
		case opRmoveto:
			c.resolveWidth(b0)
			if 2 <= len(c.stack) {
				c.moveTo(c.stack[0], c.stack[1])
			}
			c.stack = c.stack[:0]
		case opHmoveto:
			c.resolveWidth(b0)
			if 1 <= len(c.stack) {
				c.moveTo(c.stack[0], 0)
			}
			c.stack = c.stack[:0]
		case opVmoveto:
			c.resolveWidth(b0)
			if 1 <= len(c.stack) {
				c.moveTo(0, c.stack[0])
			}
			c.stack = c.stack[:0]
		case opRlineto:
			for i := 0; i+1 < len(c.stack); i += 2 {
				c.lineTo(c.stack[i], c.stack[i+1])
			}
			c.stack = c.stack[:0]
		case opHlineto, opVlineto:
			vertical := b0 == opVlineto
			for _, v := range c.stack {
				if vertical {
					c.lineTo(0, v)
				} else {
					c.lineTo(v, 0)
				}
				vertical = !vertical
			}
			c.stack = c.stack[:0]
		case opRrcurveto, opRcurveline, opRlinecurve:
			tmp := c.stack
			for b0 == opRlinecurve && 8 <= len(tmp) {
				c.lineTo(tmp[0], tmp[1])
				tmp = tmp[2:]
			}
			for 6 <= len(tmp) {
				c.curveTo(tmp[0], tmp[1], tmp[2], tmp[3], tmp[4], tmp[5])
				tmp = tmp[6:]
			}
			if b0 == opRcurveline && 2 <= len(tmp) {
				c.lineTo(tmp[0], tmp[1])
			}
			c.stack = c.stack[:0]
		case opHhcurveto, opVvcurveto:
			tmp := c.stack
			var d1 float64
			if len(tmp)%4 != 0 && 0 < len(tmp) {
				d1, tmp = tmp[0], tmp[1:]
			}
			for 4 <= len(tmp) {
				if b0 == opHhcurveto {
					c.curveTo(tmp[0], d1, tmp[1], tmp[2], tmp[3], 0)
				} else {
					c.curveTo(d1, tmp[0], tmp[1], tmp[2], 0, tmp[3])
				}
				tmp = tmp[4:]
				d1 = 0
			}
			c.stack = c.stack[:0]
		case opHvcurveto, opVhcurveto:
			tmp := c.stack
			horizontal := b0 == opHvcurveto
			for 4 <= len(tmp) {
				var last float64
				if len(tmp) == 5 {
					last = tmp[4]
				}
				if horizontal {
					c.curveTo(tmp[0], 0, tmp[1], tmp[2], last, tmp[3])
				} else {
					c.curveTo(0, tmp[0], tmp[1], tmp[2], tmp[3], last)
				}
				tmp = tmp[4:]
				horizontal = !horizontal
			}
			c.stack = c.stack[:0]
		case opFlex:
			if 13 <= len(c.stack) {
				s := c.stack
				c.curveTo(s[0], s[1], s[2], s[3], s[4], s[5])
				c.curveTo(s[6], s[7], s[8], s[9], s[10], s[11])
			}
			c.stack = c.stack[:0]
		case opHflex:
			if 7 <= len(c.stack) {
				s := c.stack
				c.curveTo(s[0], 0, s[1], s[2], s[3], 0)
				c.curveTo(s[4], 0, s[5], -s[2], s[6], 0)
			}
			c.stack = c.stack[:0]
		case opHflex1:
			if 9 <= len(c.stack) {
				s := c.stack
				c.curveTo(s[0], s[1], s[2], s[3], s[4], 0)
				dy := s[1] + s[3] + s[7]
				c.curveTo(s[5], 0, s[6], s[7], s[8], -dy)
			}
			c.stack = c.stack[:0]
		case opFlex1:
			if 11 <= len(c.stack) {
				s := c.stack
				dx := s[0] + s[2] + s[4] + s[6] + s[8]
				dy := s[1] + s[3] + s[5] + s[7] + s[9]
				c.curveTo(s[0], s[1], s[2], s[3], s[4], s[5])
				if math.Abs(dy) < math.Abs(dx) {
					c.curveTo(s[6], s[7], s[8], s[9], s[10], -dy)
				} else {
					c.curveTo(s[6], s[7], s[8], s[9], -dx, s[10])
				}
			}
			c.stack = c.stack[:0]
		case opHstem, opVstem, opHstemhm, opVstemhm:
			c.resolveWidth(b0)
			c.addStems()
			if MaxStemHints < c.stems {
				return false, c.errf(r, "too many stem hints")
			}
			c.stack = c.stack[:0]
		case opHintmask, opCntrmask:
			c.resolveWidth(b0)
			// operands before the mask are an implicit vstem sequence
			c.addStems()
			if MaxStemHints < c.stems {
				return false, c.errf(r, "too many stem hints")
			}
			c.stack = c.stack[:0]
			n := uint32(maskSize(c.stems))
			if r.Len() < n {
				return false, c.errf(r, "truncated hint mask")
			}
			r.ReadBytes(n)
		case opCallsubr, opCallgsubr:
			if len(c.stack) == 0 {
				return false, c.errf(r, "missing subroutine index")
			}
			if maxSubrDepth <= c.depth {
				return false, c.errf(r, "subroutine nesting too deep")
			}
			subrs := c.localSubrs
			if b0 == opCallgsubr {
				subrs = c.globalSubrs
			}
			i := int(c.stack[len(c.stack)-1]) + subrsBias(subrs.Len())
			c.stack = c.stack[:len(c.stack)-1]
			if i < 0 || math.MaxUint16 < i {
				return false, c.errf(r, "bad subroutine %d", i)
			}
			subr := subrs.Get(uint16(i))
			if subr == nil {
				return false, c.errf(r, "bad subroutine %d", i)
			} else if MaxCharStringLength < len(subr) {
				return false, c.errf(r, "subroutine too long")
			}
			c.depth++
			done, err := c.execute(subr)
			c.depth--
			if err != nil || done {
				return done, err
			}
		case opReturn:
			return false, nil
		case opEndchar:
			c.resolveWidth(b0)
			// a remaining operand group would be the deprecated seac
			// accent composition, which is not expanded
			c.stack = c.stack[:0]
			if c.open {
				c.p.Close()
				c.open = false
			}
			return true, nil
		case opAdd:
			if k := len(c.stack) - 2; 0 <= k {
				c.stack[k] += c.stack[k+1]
				c.stack = c.stack[:k+1]
			}
		case opSub:
			if k := len(c.stack) - 2; 0 <= k {
				c.stack[k] -= c.stack[k+1]
				c.stack = c.stack[:k+1]
			}
		case opMul:
			if k := len(c.stack) - 2; 0 <= k {
				c.stack[k] *= c.stack[k+1]
				c.stack = c.stack[:k+1]
			}
		case opDiv:
			if k := len(c.stack) - 2; 0 <= k {
				// division by zero is non-fatal and yields zero
				if c.stack[k+1] != 0 {
					c.stack[k] /= c.stack[k+1]
				} else {
					c.stack[k] = 0
				}
				c.stack = c.stack[:k+1]
			}
		case opNeg:
			if k := len(c.stack) - 1; 0 <= k {
				c.stack[k] = -c.stack[k]
			}
		case opAbs:
			if k := len(c.stack) - 1; 0 <= k {
				c.stack[k] = math.Abs(c.stack[k])
			}
		case opSqrt:
			if k := len(c.stack) - 1; 0 <= k {
				if 0 < c.stack[k] {
					c.stack[k] = math.Sqrt(c.stack[k])
				} else {
					c.stack[k] = 0
				}
			}
		case opDrop:
			if k := len(c.stack) - 1; 0 <= k {
				c.stack = c.stack[:k]
			}
		case opDup:
			if k := len(c.stack) - 1; 0 <= k && len(c.stack) < maxOperandStack {
				c.stack = append(c.stack, c.stack[k])
			}
		case opExch:
			if k := len(c.stack) - 2; 0 <= k {
				c.stack[k], c.stack[k+1] = c.stack[k+1], c.stack[k]
			}
		case opIndex:
			if k := len(c.stack) - 1; 0 <= k {
				i := int(c.stack[k])
				if i < 0 {
					i = 0
				}
				if 0 <= k-i-1 {
					c.stack[k] = c.stack[k-i-1]
				} else {
					c.stack = c.stack[:0]
				}
			}
		case opRoll:
			if k := len(c.stack) - 2; 0 <= k {
				n := int(c.stack[k])
				j := int(c.stack[k+1])
				c.stack = c.stack[:k]
				if 0 < n && n <= k {
					rollStack(c.stack[k-n:k], j)
				}
			}
		case opPut:
			if k := len(c.stack) - 2; 0 <= k {
				if c.trans == nil {
					c.trans = make([]float64, transientSize)
				}
				if i := int(c.stack[k+1]); 0 <= i && i < transientSize {
					c.trans[i] = c.stack[k]
				}
				c.stack = c.stack[:k]
			}
		case opGet:
			if k := len(c.stack) - 1; 0 <= k {
				if i := int(c.stack[k]); 0 <= i && i < len(c.trans) {
					c.stack[k] = c.trans[i]
				} else {
					c.stack[k] = 0
				}
			}
		case opAnd:
			if k := len(c.stack) - 2; 0 <= k {
				c.stack[k] = boolVal(c.stack[k] != 0 && c.stack[k+1] != 0)
				c.stack = c.stack[:k+1]
			}
		case opOr:
			if k := len(c.stack) - 2; 0 <= k {
				c.stack[k] = boolVal(c.stack[k] != 0 || c.stack[k+1] != 0)
				c.stack = c.stack[:k+1]
			}
		case opNot:
			if k := len(c.stack) - 1; 0 <= k {
				c.stack[k] = boolVal(c.stack[k] == 0)
			}
		case opEq:
			if k := len(c.stack) - 2; 0 <= k {
				c.stack[k] = boolVal(c.stack[k] == c.stack[k+1])
				c.stack = c.stack[:k+1]
			}
		case opIfelse:
			if k := len(c.stack) - 4; 0 <= k {
				if c.stack[k+3] < c.stack[k+2] {
					c.stack[k] = c.stack[k+1]
				}
				c.stack = c.stack[:k+1]
			}
		case opRandom:
			if len(c.stack) < maxOperandStack {
				// fixed value in (0,1] keeps interpretation deterministic
				c.stack = append(c.stack, 40501.0/65536.0)
			}
		default:
			// unknown operators are non-fatal in real-world fonts
			c.stack = c.stack[:0]
		}
	}
	return false, nil
}

func boolVal(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func rollStack(data []float64, j int) {
	n := len(data)
	j = j % n
	if j < 0 {
		j += n
	}
	if j == 0 {
		return
	}
	tmp := make([]float64, j)
	copy(tmp, data[n-j:])
	copy(data[j:], data[:n-j])
	copy(data[:j], tmp)
}
