package capture

import (
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// Motion gate tuning.
const (
	// blurKernel is the Gaussian kernel applied before differencing.
	blurKernel = 21
	// pixelDelta is the per-pixel gray level change counted as motion.
	pixelDelta = 25
)

// MotionGate decides whether a frame differs enough from the previous one
// to be worth running the person detector on. On a Raspberry Pi the detector
// dominates the frame budget, so static scenes are skipped.
//
// A gate with a zero threshold is disabled and lets every frame through.
type MotionGate struct {
	threshold float64 // percent of pixels that must change
	prev      gocv.Mat
	primed    bool
	closed    bool
	mu        sync.Mutex
}

// NewMotionGate creates a gate that opens when more than threshold percent
// of the pixels change between consecutive frames.
func NewMotionGate(threshold float64) *MotionGate {
	return &MotionGate{
		threshold: threshold,
		prev:      gocv.NewMat(),
	}
}

// Enabled reports whether the gate filters anything.
func (g *MotionGate) Enabled() bool {
	return g != nil && g.threshold > 0
}

// Open reports whether frame should go to the detector, along with the
// percentage of changed pixels. The first frame after a reset always opens
// the gate so a person standing still at startup is not missed.
func (g *MotionGate) Open(frame *gocv.Mat) (bool, float64) {
	if !g.Enabled() {
		return true, 0
	}
	if frame == nil || frame.Empty() {
		return false, 0
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return true, 0
	}

	gray := gocv.NewMat()
	defer gray.Close()
	if frame.Channels() > 1 {
		gocv.CvtColor(*frame, &gray, gocv.ColorBGRToGray)
	} else {
		frame.CopyTo(&gray)
	}

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(gray, &blurred, image.Point{X: blurKernel, Y: blurKernel}, 0, 0, gocv.BorderDefault)

	if !g.primed {
		blurred.CopyTo(&g.prev)
		g.primed = true
		return true, 100
	}

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(blurred, g.prev, &diff)

	mask := gocv.NewMat()
	defer mask.Close()
	gocv.Threshold(diff, &mask, pixelDelta, 255, gocv.ThresholdBinary)

	changed := float64(gocv.CountNonZero(mask)) / float64(mask.Rows()*mask.Cols()) * 100.0

	blurred.CopyTo(&g.prev)

	return changed > g.threshold, changed
}

// Reset forgets the reference frame.
func (g *MotionGate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return
	}
	if !g.prev.Empty() {
		g.prev.Close()
		g.prev = gocv.NewMat()
	}
	g.primed = false
}

// Close releases the reference frame. A closed gate lets every frame through.
func (g *MotionGate) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return
	}
	g.prev.Close()
	g.closed = true
	g.primed = false
}
