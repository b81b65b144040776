package cff

import (
	"fmt"
	"math"

	"github.com/tdewolff/parse/v2"
)

// writeCharStringNumber emits a charstring operand, choosing the shortest
// integer encoding, or the 16.16 fixed-point form for non-integral values.
func writeCharStringNumber(w *parse.BinaryWriter, v float64) error {
	if i := math.Round(v); i == v && -32768 <= i && i <= 32767 {
		j := int(i)
		if -107 <= j && j <= 107 {
			w.WriteUint8(uint8(j + 139))
		} else if 108 <= j && j <= 1131 {
			j -= 108
			w.WriteUint8(uint8(j/256 + 247))
			w.WriteUint8(uint8(j % 256))
		} else if -1131 <= j && j <= -108 {
			j = -j - 108
			w.WriteUint8(uint8(j/256 + 251))
			w.WriteUint8(uint8(j % 256))
		} else {
			w.WriteUint8(28)
			w.WriteUint16(uint16(j))
		}
		return nil
	}
	fixed := math.Round(v * 65536.0)
	if fixed < math.MinInt32 || math.MaxInt32 < fixed {
		return fmt.Errorf("%w: operand %g out of range", ErrCorruptedCharString, v)
	}
	w.WriteUint8(255)
	w.WriteUint32(uint32(int32(fixed)))
	return nil
}

// EncodeCharString encodes an outline into Type 2 charstring bytecode. The
// path's absolute coordinates are delta-encoded against the running pen
// position and rounded to the nearest font unit. When hasWidth is set the
// width operand is emitted first; callers account for nominalWidthX.
//
// Movetos use the single-axis hmoveto/vmoveto forms when the other axis
// delta rounds to zero; lines and curves use rlineto/rrcurveto.
func EncodeCharString(path *Path, width float64, hasWidth bool) ([]byte, error) {
	w := parse.NewBinaryWriter([]byte{})
	if hasWidth {
		if err := writeCharStringNumber(w, math.Round(width)); err != nil {
			return nil, err
		}
	}

	var x, y int // pen position in rounded font units
	delta := func(cmd PathCmd) []int {
		ds := make([]int, 0, len(cmd.Args))
		px, py := x, y
		for i := 0; i+1 < len(cmd.Args); i += 2 {
			cx := int(math.Round(cmd.Args[i]))
			cy := int(math.Round(cmd.Args[i+1]))
			ds = append(ds, cx-px, cy-py)
			px, py = cx, cy
		}
		x, y = px, py
		return ds
	}

	for _, cmd := range path.Cmds {
		switch cmd.Op {
		case MoveToCmd:
			ds := delta(cmd)
			if ds[1] == 0 {
				writeCharStringNumber(w, float64(ds[0]))
				w.WriteUint8(opHmoveto)
			} else if ds[0] == 0 {
				writeCharStringNumber(w, float64(ds[1]))
				w.WriteUint8(opVmoveto)
			} else {
				writeCharStringNumber(w, float64(ds[0]))
				writeCharStringNumber(w, float64(ds[1]))
				w.WriteUint8(opRmoveto)
			}
		case LineToCmd:
			ds := delta(cmd)
			writeCharStringNumber(w, float64(ds[0]))
			writeCharStringNumber(w, float64(ds[1]))
			w.WriteUint8(opRlineto)
		case CubeToCmd:
			for _, d := range delta(cmd) {
				writeCharStringNumber(w, float64(d))
			}
			w.WriteUint8(opRrcurveto)
		case CloseCmd:
			// contours close implicitly
		default:
			return nil, fmt.Errorf("%w: cannot represent path command %d", ErrUnsupported, cmd.Op)
		}
	}
	w.WriteUint8(opEndchar)
	return w.Bytes(), nil
}
