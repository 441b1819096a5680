package keypoint

import (
	"fmt"
	"math"
	"math/bits"
	"strings"
)

// Norm selects how descriptor differences are accumulated.
type Norm int

const (
	// L1 sums absolute differences.
	L1 Norm = iota + 1
	// L2 sums squared differences.
	L2
)

// Initial distance bounds per norm and the ratio reported when the second
// best distance is zero.
const (
	BoundL1       float32 = 2800
	BoundL2       float32 = 1e12
	RatioSentinel float32 = 1e12
)

// Unreachable is returned for pairs that may never match: mixed descriptor
// variants, length mismatches and opposite polarities.
var Unreachable = float32(math.Inf(1))

// ParseNorm accepts "l1" or "l2" (case-insensitive).
func ParseNorm(s string) (Norm, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "l1":
		return L1, nil
	case "l2":
		return L2, nil
	default:
		return 0, fmt.Errorf("unknown norm %q", s)
	}
}

func (n Norm) String() string {
	switch n {
	case L1:
		return "l1"
	case L2:
		return "l2"
	default:
		return fmt.Sprintf("norm(%d)", int(n))
	}
}

// Bound is the starting bound for nearest neighbour searches.
func (n Norm) Bound() float32 {
	if n == L1 {
		return BoundL1
	}
	return BoundL2
}

// Descriptor is a comparable local-feature payload.
//
// Distance accumulates component differences and stops as soon as the
// running sum exceeds bound, so any return value above bound is only a
// lower bound of the true distance.
type Descriptor interface {
	Distance(other Descriptor, norm Norm, bound float32) float32
	Len() int
}

// Float is a real-valued descriptor such as a gradient histogram.
// A non-zero Polarity acts as a pre-filter against descriptors of opposite
// polarity.
type Float struct {
	Vec      []float32
	Polarity int8
}

// Len returns the number of components.
func (f Float) Len() int { return len(f.Vec) }

// Distance implements Descriptor.
func (f Float) Distance(other Descriptor, norm Norm, bound float32) float32 {
	o, ok := other.(Float)
	if !ok || len(o.Vec) != len(f.Vec) || polarityMismatch(f.Polarity, o.Polarity) {
		return Unreachable
	}
	var sum float32
	if norm == L1 {
		for i, v := range f.Vec {
			d := v - o.Vec[i]
			if d < 0 {
				d = -d
			}
			sum += d
			if sum > bound {
				return sum
			}
		}
		return sum
	}
	for i, v := range f.Vec {
		d := v - o.Vec[i]
		sum += d * d
		if sum > bound {
			return sum
		}
	}
	return sum
}

// Binary is a bit-string descriptor compared by Hamming distance; both
// norms reduce to the number of differing bits.
type Binary struct {
	Bits     []uint64
	Polarity int8
}

// Len returns the number of bits.
func (b Binary) Len() int { return 64 * len(b.Bits) }

// Distance implements Descriptor.
func (b Binary) Distance(other Descriptor, _ Norm, bound float32) float32 {
	o, ok := other.(Binary)
	if !ok || len(o.Bits) != len(b.Bits) || polarityMismatch(b.Polarity, o.Polarity) {
		return Unreachable
	}
	sum := 0
	for i, w := range b.Bits {
		sum += bits.OnesCount64(w ^ o.Bits[i])
		if float32(sum) > bound {
			break
		}
	}
	return float32(sum)
}

func polarityMismatch(a, b int8) bool {
	return a != 0 && b != 0 && a != b
}
