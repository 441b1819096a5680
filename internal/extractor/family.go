package extractor

import (
	"errors"
	"fmt"
	"strings"

	"github.com/MeKo-Tech/imas/internal/keypoint"
)

// Family selects the descriptor computed for each detection.
type Family int

const (
	// SIFT is a 4x4x8 gradient orientation histogram compared with L1.
	SIFT Family = iota
	// RootSIFT is the square root of the L1-normalised histogram, compared with L2.
	RootSIFT
	// HalfSIFT folds opposite orientation bins, for contrast-inverted scenes.
	HalfSIFT
	// HalfRootSIFT is the rooted variant of HalfSIFT.
	HalfRootSIFT
	// BRIEF is a steered 256-bit intensity comparison pattern.
	BRIEF
)

// ErrUnknownFamily is returned by ParseFamily for unrecognized names.
var ErrUnknownFamily = errors.New("unknown descriptor family")

var familyNames = map[Family]string{
	SIFT:         "sift",
	RootSIFT:     "rootsift",
	HalfSIFT:     "halfsift",
	HalfRootSIFT: "halfrootsift",
	BRIEF:        "brief",
}

// FamilyNames lists the accepted names in declaration order.
func FamilyNames() []string {
	return []string{"sift", "rootsift", "halfsift", "halfrootsift", "brief"}
}

// ParseFamily maps a name to a Family.
func ParseFamily(name string) (Family, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for f, s := range familyNames {
		if s == n {
			return f, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownFamily, name)
}

func (f Family) String() string {
	if s, ok := familyNames[f]; ok {
		return s
	}
	return fmt.Sprintf("family(%d)", int(f))
}

// Norm is the distance used to compare this family's descriptors.
func (f Family) Norm() keypoint.Norm {
	switch f {
	case RootSIFT, HalfRootSIFT:
		return keypoint.L2
	default:
		return keypoint.L1
	}
}

// DefaultRatio is the nearest neighbour distance ratio threshold.
func (f Family) DefaultRatio() float64 {
	if f == BRIEF {
		return 0.6
	}
	return 0.8
}

// CoveringRadius is the default geometric step between simulated tilts.
func (f Family) CoveringRadius() float64 {
	if f == BRIEF {
		return 1.4
	}
	return 1.7
}

func (f Family) rooted() bool { return f == RootSIFT || f == HalfRootSIFT }
func (f Family) halved() bool { return f == HalfSIFT || f == HalfRootSIFT }
