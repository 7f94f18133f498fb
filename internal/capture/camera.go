// Package capture pulls frames from a USB camera using GoCV (OpenCV).
package capture

import (
	"errors"
	"fmt"
	"sync"

	"gocv.io/x/gocv"
)

// Default camera settings.
const (
	DefaultFPS    = 15
	DefaultWidth  = 1280
	DefaultHeight = 720
)

var (
	// ErrDeviceUnavailable is returned by Open when the device index cannot be opened.
	ErrDeviceUnavailable = errors.New("camera device unavailable")
	// ErrCameraNotOpen is returned when reading from a camera that is not open.
	ErrCameraNotOpen = errors.New("camera is not open")
	// ErrEmptyFrame is returned when the device hands back an empty frame.
	ErrEmptyFrame = errors.New("captured frame is empty")
)

// Camera is the frame source of the detection loop.
type Camera interface {
	Open() error
	Close() error
	// ReadFrame returns the next frame. The caller owns the Mat and must Close it.
	ReadFrame() (*gocv.Mat, error)
	IsOpen() bool
}

// Options selects the device and the requested capture format.
type Options struct {
	DeviceID int
	Width    int
	Height   int
	FPS      int
}

// Resolution is the frame size the device actually delivers.
type Resolution struct {
	Width  int
	Height int
	FPS    float64
}

// USBCamera captures from a V4L2/UVC device through gocv.VideoCapture.
type USBCamera struct {
	opts    Options
	capture *gocv.VideoCapture
	actual  Resolution
	mu      sync.Mutex
}

// NewCamera creates a USBCamera. Zero fields in opts fall back to the defaults.
func NewCamera(opts Options) *USBCamera {
	if opts.Width <= 0 {
		opts.Width = DefaultWidth
	}
	if opts.Height <= 0 {
		opts.Height = DefaultHeight
	}
	if opts.FPS <= 0 {
		opts.FPS = DefaultFPS
	}
	return &USBCamera{opts: opts}
}

// Open opens the device and requests the configured resolution and rate.
// Devices are free to pick a nearby mode; Actual reports what was granted.
func (c *USBCamera) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capture != nil {
		return nil
	}

	vc, err := gocv.OpenVideoCapture(c.opts.DeviceID)
	if err != nil {
		return fmt.Errorf("%w: index %d: %v", ErrDeviceUnavailable, c.opts.DeviceID, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return fmt.Errorf("%w: index %d", ErrDeviceUnavailable, c.opts.DeviceID)
	}

	vc.Set(gocv.VideoCaptureFrameWidth, float64(c.opts.Width))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(c.opts.Height))
	vc.Set(gocv.VideoCaptureFPS, float64(c.opts.FPS))

	c.actual = Resolution{
		Width:  int(vc.Get(gocv.VideoCaptureFrameWidth)),
		Height: int(vc.Get(gocv.VideoCaptureFrameHeight)),
		FPS:    vc.Get(gocv.VideoCaptureFPS),
	}
	c.capture = vc

	return nil
}

// Close releases the device. Closing a closed camera is a no-op.
func (c *USBCamera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capture == nil {
		return nil
	}

	err := c.capture.Close()
	c.capture = nil
	return err
}

// ReadFrame grabs one frame from the device.
func (c *USBCamera) ReadFrame() (*gocv.Mat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capture == nil {
		return nil, ErrCameraNotOpen
	}

	mat := gocv.NewMat()
	if ok := c.capture.Read(&mat); !ok {
		mat.Close()
		return nil, errors.New("failed to grab frame")
	}
	if mat.Empty() {
		mat.Close()
		return nil, ErrEmptyFrame
	}

	return &mat, nil
}

// IsOpen reports whether the device is open.
func (c *USBCamera) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capture != nil
}

// Options returns the requested capture options.
func (c *USBCamera) Options() Options {
	return c.opts
}

// Actual returns the mode granted by the device. Zero until Open succeeds.
func (c *USBCamera) Actual() Resolution {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.actual
}
