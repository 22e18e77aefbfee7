package track

import (
	"gonum.org/v1/gonum/mat"
)

const (
	stateDim = 8
	measDim  = 4

	// sizeVelDamping shrinks the size-velocity components each step so a
	// noisy detector cannot drive long-term box growth or shrink.
	sizeVelDamping = 0.8
)

// Default diagonal noise values. Position and size process noise can be
// overridden per tracker config; the rest are fixed design choices.
const (
	defaultPosNoise  = 1e-3
	defaultSizeNoise = 2e-3
	velNoise         = 1e-3
	sizeVelNoise     = 1e-2
	measPosNoise     = 1e-2
	measSizeNoise    = 1e-1
)

// motionFilter is a per-track linear-Gaussian filter over the state
// [px py w h vx vy vw vh], where (px, py) is the bottom midpoint of the box.
// Tying position to the bottom midpoint decouples position noise from size
// changes. Observations are [px py w h].
type motionFilter struct {
	x *mat.VecDense // state (8x1)
	p *mat.Dense    // posterior covariance (8x8)
	f *mat.Dense    // transition (8x8)
	q *mat.Dense    // process noise (8x8)
	h *mat.Dense    // measurement (4x8)
	r *mat.Dense    // measurement noise (4x4)
}

// newMotionFilter initializes the filter from the first observed box with
// zero velocities and identity posterior covariance.
func newMotionFilter(box BoundingBox, posNoise, sizeNoise float64) *motionFilter {
	if posNoise <= 0 {
		posNoise = defaultPosNoise
	}
	if sizeNoise <= 0 {
		sizeNoise = defaultSizeNoise
	}

	f := mat.NewDense(stateDim, stateDim, nil)
	for i := 0; i < measDim; i++ {
		f.Set(i, i, 1)
	}
	f.Set(0, 4, 1) // px += vx
	f.Set(1, 5, 1) // py += vy
	f.Set(2, 6, sizeVelDamping)
	f.Set(3, 7, sizeVelDamping)
	f.Set(4, 4, 1)
	f.Set(5, 5, 1)
	f.Set(6, 6, sizeVelDamping)
	f.Set(7, 7, sizeVelDamping)

	h := mat.NewDense(measDim, stateDim, nil)
	for i := 0; i < measDim; i++ {
		h.Set(i, i, 1)
	}

	q := mat.NewDense(stateDim, stateDim, nil)
	q.Set(0, 0, posNoise)
	q.Set(1, 1, posNoise)
	q.Set(2, 2, sizeNoise)
	q.Set(3, 3, sizeNoise)
	q.Set(4, 4, velNoise)
	q.Set(5, 5, velNoise)
	q.Set(6, 6, sizeVelNoise)
	q.Set(7, 7, sizeVelNoise)

	r := mat.NewDense(measDim, measDim, nil)
	r.Set(0, 0, measPosNoise)
	r.Set(1, 1, measPosNoise)
	r.Set(2, 2, measSizeNoise)
	r.Set(3, 3, measSizeNoise)

	p := mat.NewDense(stateDim, stateDim, nil)
	for i := 0; i < stateDim; i++ {
		p.Set(i, i, 1)
	}

	return &motionFilter{
		x: stateFromBox(box),
		p: p,
		f: f,
		q: q,
		h: h,
		r: r,
	}
}

func stateFromBox(box BoundingBox) *mat.VecDense {
	x := mat.NewVecDense(stateDim, nil)
	x.SetVec(0, float64(box.X)+float64(box.W)*0.5)
	x.SetVec(1, float64(box.Y)+float64(box.H))
	x.SetVec(2, float64(box.W))
	x.SetVec(3, float64(box.H))
	return x
}

func (mf *motionFilter) box() BoundingBox {
	w := mf.x.AtVec(2)
	if w < 1 {
		w = 1
	}
	h := mf.x.AtVec(3)
	if h < 1 {
		h = 1
	}
	px := mf.x.AtVec(0)
	py := mf.x.AtVec(1)
	return BoundingBox{
		X: float32(px - w*0.5),
		Y: float32(py - h),
		W: float32(w),
		H: float32(h),
	}
}

// Predict advances the state one frame and returns the predicted box with
// width and height clamped to at least one pixel.
func (mf *motionFilter) Predict() BoundingBox {
	var xNext mat.VecDense
	xNext.MulVec(mf.f, mf.x)
	mf.x.CopyVec(&xNext)

	var fp, pNext mat.Dense
	fp.Mul(mf.f, mf.p)
	pNext.Mul(&fp, mf.f.T())
	pNext.Add(&pNext, mf.q)
	mf.p.Copy(&pNext)

	return mf.box()
}

// Correct folds an observed box into the state estimate.
func (mf *motionFilter) Correct(box BoundingBox) {
	z := mat.NewVecDense(measDim, []float64{
		float64(box.X) + float64(box.W)*0.5,
		float64(box.Y) + float64(box.H),
		float64(box.W),
		float64(box.H),
	})

	// y = z - H x
	var hx, y mat.VecDense
	hx.MulVec(mf.h, mf.x)
	y.SubVec(z, &hx)

	// S = H P H^T + R
	var hp, s mat.Dense
	hp.Mul(mf.h, mf.p)
	s.Mul(&hp, mf.h.T())
	s.Add(&s, mf.r)

	// K = P H^T S^-1
	var sInv mat.Dense
	if err := sInv.Inverse(&s); err != nil {
		// Singular innovation covariance; keep the prediction.
		return
	}
	var pht, k mat.Dense
	pht.Mul(mf.p, mf.h.T())
	k.Mul(&pht, &sInv)

	// x = x + K y
	var ky mat.VecDense
	ky.MulVec(&k, &y)
	mf.x.AddVec(mf.x, &ky)

	// P = (I - K H) P
	var kh mat.Dense
	kh.Mul(&k, mf.h)
	eye := mat.NewDense(stateDim, stateDim, nil)
	for i := 0; i < stateDim; i++ {
		eye.Set(i, i, 1)
	}
	var iMinusKH, pNext mat.Dense
	iMinusKH.Sub(eye, &kh)
	pNext.Mul(&iMinusKH, mf.p)
	mf.p.Copy(&pNext)
}
