package track

// BoundingBox is an axis-aligned detection box in frame coordinates,
// together with the detector's class and confidence.
type BoundingBox struct {
	X       float32
	Y       float32
	W       float32
	H       float32
	ClassID int
	Score   float32
}

const iouEps = 1e-6

// Area returns the box area; zero or negative extents yield 0.
func (b BoundingBox) Area() float32 {
	if b.W <= 0 || b.H <= 0 {
		return 0
	}
	return b.W * b.H
}

// Center returns the geometric center of the box.
func (b BoundingBox) Center() (float32, float32) {
	return b.X + b.W*0.5, b.Y + b.H*0.5
}

func intersection(a, b BoundingBox) float32 {
	w := minf(a.X+a.W, b.X+b.W) - maxf(a.X, b.X)
	h := minf(a.Y+a.H, b.Y+b.H) - maxf(a.Y, b.Y)
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// IoU returns intersection-over-union in [0, 1].
func IoU(a, b BoundingBox) float32 {
	inter := intersection(a, b)
	if inter <= 0 {
		return 0
	}
	union := a.Area() + b.Area() - inter + iouEps
	return inter / union
}

// IoMin returns intersection over the smaller of the two areas. Unlike IoU it
// saturates at 1 when one box is fully contained in the other.
func IoMin(a, b BoundingBox) float32 {
	inter := intersection(a, b)
	if inter <= 0 {
		return 0
	}
	minArea := minf(a.Area(), b.Area())
	if minArea <= 0 {
		return 0
	}
	return inter / minArea
}

func minf(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

func maxf(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}
