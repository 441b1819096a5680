package extractor

import (
	"math"
	"sort"

	"github.com/MeKo-Tech/imas/internal/imageio"
)

// circle is the Bresenham circle of radius 3 used by the segment test.
var circle = [16][2]int{
	{0, -3}, {1, -3}, {2, -2}, {3, -1},
	{3, 0}, {3, 1}, {2, 2}, {1, 3},
	{0, 3}, {-1, 3}, {-2, 2}, {-3, 1},
	{-3, 0}, {-3, -1}, {-2, -2}, {-1, -3},
}

// arcLength is the number of contiguous circle pixels that must all be
// brighter or darker than the centre.
const arcLength = 9

type corner struct {
	x, y  int
	score float32
}

// detectCorners runs the segment test on every pixel at least margin away
// from the border and keeps local maxima of the score in a 3x3 window.
func detectCorners(img *imageio.Gray, threshold float32, margin int) []corner {
	w, h := img.Width, img.Height
	margin = max(margin, 3)
	if w <= 2*margin || h <= 2*margin {
		return nil
	}
	scores := make([]float32, w*h)
	var found []corner
	for y := margin; y < h-margin; y++ {
		for x := margin; x < w-margin; x++ {
			if s := segmentScore(img, x, y, threshold); s > 0 {
				scores[y*w+x] = s
				found = append(found, corner{x: x, y: y, score: s})
			}
		}
	}

	kept := found[:0]
	for _, c := range found {
		if isLocalMax(scores, w, c) {
			kept = append(kept, c)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].score > kept[j].score })
	return kept
}

// segmentScore returns the summed contrast of the circle pixels beyond the
// threshold when a long enough bright or dark arc exists, else 0.
func segmentScore(img *imageio.Gray, x, y int, threshold float32) float32 {
	p := img.Pix[y*img.Width+x]
	var diff [16]float32
	for i, o := range circle {
		diff[i] = img.Pix[(y+o[1])*img.Width+x+o[0]] - p
	}
	if !hasArc(diff[:], threshold, 1) && !hasArc(diff[:], threshold, -1) {
		return 0
	}
	var score float32
	for _, d := range diff {
		if a := float32(math.Abs(float64(d))); a > threshold {
			score += a - threshold
		}
	}
	return score
}

// hasArc checks for arcLength contiguous entries with sign*diff > threshold,
// wrapping around the circle.
func hasArc(diff []float32, threshold, sign float32) bool {
	run := 0
	for i := range 2 * len(diff) {
		if sign*diff[i%len(diff)] > threshold {
			run++
			if run >= arcLength {
				return true
			}
		} else {
			run = 0
		}
	}
	return false
}

func isLocalMax(scores []float32, w int, c corner) bool {
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			s := scores[(c.y+dy)*w+c.x+dx]
			// Ties go to the earlier pixel in raster order.
			if s > c.score || (s == c.score && (dy < 0 || (dy == 0 && dx < 0))) {
				return false
			}
		}
	}
	return true
}

// orientation is the intensity centroid angle in a disc of the given radius.
func orientation(img *imageio.Gray, x, y, radius int) float64 {
	var m10, m01 float64
	r2 := radius * radius
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if dx*dx+dy*dy > r2 {
				continue
			}
			v := float64(img.At(x+dx, y+dy))
			m10 += float64(dx) * v
			m01 += float64(dy) * v
		}
	}
	return math.Atan2(m01, m10)
}

// laplacianSign is +1 for a dark-on-bright centre and -1 otherwise.
func laplacianSign(img *imageio.Gray, x, y int) int8 {
	c := img.At(x, y)
	lap := img.At(x-1, y) + img.At(x+1, y) + img.At(x, y-1) + img.At(x, y+1) - 4*c
	if lap > 0 {
		return 1
	}
	return -1
}
