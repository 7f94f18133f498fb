// Package app runs the door camera detection loop: capture, detect, match,
// classify, log and notify, with a global cooldown between alerts.
package app

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"
	"gocv.io/x/gocv"

	"github.com/ayusman/doorcam/internal/capture"
	"github.com/ayusman/doorcam/internal/detector"
	"github.com/ayusman/doorcam/internal/event"
	"github.com/ayusman/doorcam/internal/eventlog"
	"github.com/ayusman/doorcam/internal/face"
	"github.com/ayusman/doorcam/internal/hook"
	"github.com/ayusman/doorcam/internal/metrics"
	"github.com/ayusman/doorcam/internal/notify"
	"github.com/ayusman/doorcam/internal/snapshot"
	"github.com/ayusman/doorcam/internal/store"
	"github.com/ayusman/doorcam/internal/throttle"
)

// statsEvery is the number of frames between two throughput log lines.
const statsEvery = 100

// Identifier names the person inside a box of a frame.
type Identifier interface {
	Identify(frame *gocv.Mat, box image.Rectangle) (face.Match, error)
}

// Publisher receives every emitted event. Publish must not block.
type Publisher interface {
	Publish(ev event.Detection)
}

// FrameSink receives JPEG frames for the live view while someone watches.
type FrameSink interface {
	Watching() bool
	Put(jpeg []byte)
}

// Config holds the collaborators of the loop. Camera, Detector, Notifier and
// Throttle are required; everything else may be nil.
type Config struct {
	Camera   capture.Camera
	Detector detector.Detector // expected to return qualifying persons only
	Notifier notify.Notifier
	Throttle *throttle.Throttle

	Identifier Identifier
	Motion     *capture.MotionGate
	Snapshots  *snapshot.Writer
	CSV        *eventlog.Writer
	Store      *store.Store
	Hooks      *hook.Runner
	Publisher  Publisher
	Feed       FrameSink
	Metrics    *metrics.Metrics

	CameraIndex   int
	FrameInterval time.Duration
	Startup       *notify.StartupInfo // sent once the camera is open
	Clock         clock.Clock
	Logger        zerolog.Logger
}

// App is the detection loop.
type App struct {
	config  Config
	clock   clock.Clock
	log     zerolog.Logger
	metrics *metrics.Metrics

	mu      sync.RWMutex
	armed   bool
	last    *event.Detection
	started time.Time
	onEvent []func(event.Detection)
}

// New creates an App. The armed flag and the last event are restored from
// the store when one is configured.
func New(config Config) (*App, error) {
	var missing []string
	if config.Camera == nil {
		missing = append(missing, "camera")
	}
	if config.Detector == nil {
		missing = append(missing, "detector")
	}
	if config.Notifier == nil {
		missing = append(missing, "notifier")
	}
	if config.Throttle == nil {
		missing = append(missing, "throttle")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("app: missing %v", missing)
	}

	if config.Clock == nil {
		config.Clock = clock.New()
	}
	if config.FrameInterval <= 0 {
		config.FrameInterval = time.Second / capture.DefaultFPS
	}
	if config.Metrics == nil {
		config.Metrics = metrics.New()
	}

	a := &App{
		config:  config,
		clock:   config.Clock,
		log:     config.Logger.With().Str("component", "loop").Int("camera", config.CameraIndex).Logger(),
		metrics: config.Metrics,
		armed:   true,
	}
	if config.Store != nil {
		a.armed = config.Store.Settings().Bool(store.KeyArmed, true)
		if last, err := config.Store.Detections().Latest(); err == nil {
			a.last = last
		}
	}
	a.metrics.Armed.Store(a.armed)

	return a, nil
}

// Armed reports whether qualifying detections raise alerts.
func (a *App) Armed() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.armed
}

// SetArmed arms or disarms alerting and persists the choice.
func (a *App) SetArmed(armed bool) error {
	a.mu.Lock()
	changed := a.armed != armed
	a.armed = armed
	a.mu.Unlock()

	a.metrics.Armed.Store(armed)
	if changed {
		a.log.Info().Bool("armed", armed).Msg("armed state changed")
	}

	if a.config.Store == nil {
		return nil
	}
	return a.config.Store.Settings().SetBool(store.KeyArmed, armed)
}

// OnEvent registers fn to be called after every emitted event.
func (a *App) OnEvent(fn func(event.Detection)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onEvent = append(a.onEvent, fn)
}

// LastEvent returns the most recent event, if any.
func (a *App) LastEvent() (event.Detection, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.last == nil {
		return event.Detection{}, false
	}
	return *a.last, true
}

// Metrics returns the loop counters.
func (a *App) Metrics() *metrics.Metrics {
	return a.metrics
}

// Status is the loop view served by the status API.
type Status struct {
	Armed             bool             `json:"armed"`
	State             string           `json:"state"`
	CooldownRemaining string           `json:"cooldown_remaining"`
	Interval          string           `json:"interval"`
	CameraIndex       int              `json:"camera_index"`
	FaceRecognition   bool             `json:"face_recognition"`
	Running           bool             `json:"running"`
	LastEvent         *event.Detection `json:"last_event,omitempty"`
}

// Status returns a snapshot of the loop state.
func (a *App) Status() Status {
	a.mu.RLock()
	s := Status{
		Armed:           a.armed,
		CameraIndex:     a.config.CameraIndex,
		FaceRecognition: a.config.Identifier != nil,
		Running:         !a.started.IsZero(),
	}
	if a.last != nil {
		ev := *a.last
		s.LastEvent = &ev
	}
	a.mu.RUnlock()

	t := a.config.Throttle
	s.State = t.State().String()
	s.CooldownRemaining = t.Remaining().String()
	s.Interval = t.Interval().String()
	return s
}

// Run opens the camera and processes frames until ctx is cancelled or the
// source runs out of frames. A camera that cannot be opened is fatal; a bad
// frame is skipped.
func (a *App) Run(ctx context.Context) (err error) {
	if err := a.config.Camera.Open(); err != nil {
		a.log.Error().Err(err).Msg("camera open failed")
		a.notifyError(ctx, fmt.Sprintf("Failed to open camera at index %d", a.config.CameraIndex))
		return fmt.Errorf("open camera: %w", err)
	}
	defer func() {
		err = multierr.Append(err, a.Close())
	}()

	a.mu.Lock()
	a.started = a.clock.Now()
	a.mu.Unlock()

	a.log.Info().
		Dur("interval", a.config.Throttle.Interval()).
		Bool("armed", a.Armed()).
		Bool("face_recognition", a.config.Identifier != nil).
		Msg("detection loop started")

	if a.config.Startup != nil {
		info := *a.config.Startup
		if info.Started.IsZero() {
			info.Started = a.started
		}
		if err := a.config.Notifier.SendStartup(ctx, info); err != nil && !errors.Is(err, notify.ErrDisabled) {
			a.log.Warn().Err(err).Msg("startup notification failed")
		}
	}

	return a.runPipeline(ctx)
}

// Close releases the camera, the detector and the motion gate.
func (a *App) Close() error {
	var err error
	err = multierr.Append(err, a.config.Camera.Close())
	err = multierr.Append(err, a.config.Detector.Close())
	if a.config.Motion != nil {
		a.config.Motion.Close()
	}

	a.mu.Lock()
	a.started = time.Time{}
	a.mu.Unlock()

	a.log.Info().Msg("detection loop stopped")
	return err
}

func (a *App) notifyError(ctx context.Context, msg string) {
	if err := a.config.Notifier.SendError(ctx, msg); err != nil && !errors.Is(err, notify.ErrDisabled) {
		a.log.Warn().Err(err).Msg("error notification failed")
	}
}
