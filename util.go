package cff

import "fmt"

// MaxIndexItems is the maximum number of items accepted in a single INDEX.
var MaxIndexItems uint32 = 1e6

// MaxCharStringLength is the maximum byte length of a charstring or subroutine.
var MaxCharStringLength = 65525

// MaxStemHints is the maximum number of stem hints in a charstring.
var MaxStemHints = 96

// maxOperandStack is the operand stack limit for Type 2 charstrings and DICTs.
const maxOperandStack = 48

// maxSubrDepth is the maximum nesting of subroutine calls.
const maxSubrDepth = 10

// transientSize is the size of the put/get scratch array.
const transientSize = 32

// maxOffsetPasses bounds the offset recomputation in Write. The Top DICT is
// re-encoded after its offset operands are known, which can change its own
// length; in practice the sizes stabilize after one extra pass.
const maxOffsetPasses = 4

// ErrMalformedIndex is returned for a structurally invalid INDEX.
var ErrMalformedIndex = fmt.Errorf("malformed INDEX")

// ErrMalformedDict is returned for a truncated or invalid DICT.
var ErrMalformedDict = fmt.Errorf("malformed DICT")

// ErrCorruptedCharString is returned for an unreadable charstring byte stream.
var ErrCorruptedCharString = fmt.Errorf("corrupted charstring")

// ErrInvalidEdit is returned for an operation edit at an illegal position.
var ErrInvalidEdit = fmt.Errorf("invalid edit")

// ErrUnsupported is returned for valid but unsupported font data, such as
// writing a CID-keyed font with multiple Font DICTs.
var ErrUnsupported = fmt.Errorf("unsupported")
