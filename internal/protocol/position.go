package protocol

import "fmt"

const (
	xzBias      = 0x4000000
	xzSignLimit = 0x2000000
	yBias       = 0x1000
	ySignLimit  = 0x800

	xzMask = 0x3ffffff
	yMask  = 0xfff
)

// BlockPos is a block coordinate. On the wire it is packed into one 64-bit integer:
// x in bits [38,64), z in bits [12,38), y in bits [0,12), all two's complement.
type BlockPos struct {
	X, Y, Z int32
}

// Pack returns the packed 64-bit form
func (p BlockPos) Pack() uint64 {
	x := int64(p.X)
	if x < 0 {
		x += xzBias
	}
	z := int64(p.Z)
	if z < 0 {
		z += xzBias
	}
	y := int64(p.Y)
	if y < 0 {
		y += yBias
	}
	return uint64(x&xzMask)<<38 | uint64(z&xzMask)<<12 | uint64(y&yMask)
}

// UnpackBlockPos reverses Pack
func UnpackBlockPos(v uint64) BlockPos {
	x := int64(v >> 38)
	z := int64(v>>12) & xzMask
	y := int64(v) & yMask
	if x >= xzSignLimit {
		x -= xzBias
	}
	if z >= xzSignLimit {
		z -= xzBias
	}
	if y >= ySignLimit {
		y -= yBias
	}
	return BlockPos{X: int32(x), Y: int32(y), Z: int32(z)}
}

func (p BlockPos) String() string {
	return fmt.Sprintf("(%d, %d, %d)", p.X, p.Y, p.Z)
}
