package app

import (
	"context"
	"errors"
	"math"

	"gocv.io/x/gocv"

	"github.com/ayusman/doorcam/internal/capture"
	"github.com/ayusman/doorcam/internal/detector"
	"github.com/ayusman/doorcam/internal/event"
	"github.com/ayusman/doorcam/internal/face"
	"github.com/ayusman/doorcam/internal/snapshot"
	"github.com/ayusman/doorcam/internal/throttle"
)

// runPipeline reads one frame per tick until ctx is done.
//
// Per frame:
//  1. read; a failed read is skipped
//  2. push to the live view if someone watches
//  3. drop the frame when disarmed or when the motion gate stays closed
//  4. detect persons; none above the threshold means no event
//  5. ask the throttle; COOLDOWN or a spent hourly cap means no event
//  6. match the face of the best box, then snapshot, log, store, hooks,
//     publish and notify
func (a *App) runPipeline(ctx context.Context) error {
	ticker := a.clock.Ticker(a.config.FrameInterval)
	defer ticker.Stop()

	frames := 0
	windowStart := a.clock.Now()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		_, err := a.Step(ctx)
		if errors.Is(err, capture.ErrNoMoreFrames) {
			a.log.Info().Msg("frame source exhausted")
			return nil
		}
		if err != nil {
			continue
		}

		frames++
		if frames%statsEvery == 0 {
			elapsed := a.clock.Since(windowStart).Seconds()
			if elapsed > 0 {
				a.log.Debug().Float64("fps", float64(statsEvery)/elapsed).Msg("processing rate")
			}
			windowStart = a.clock.Now()
		}
	}
}

// Step reads and processes a single frame. It returns the emitted event, or
// nil when the frame produced none. Only read errors are returned.
func (a *App) Step(ctx context.Context) (*event.Detection, error) {
	frame, err := a.config.Camera.ReadFrame()
	if err != nil {
		if !errors.Is(err, capture.ErrNoMoreFrames) {
			a.metrics.FramesSkipped.Add(1)
			a.log.Warn().Err(err).Msg("failed to grab frame")
		}
		return nil, err
	}
	defer frame.Close()

	a.metrics.FramesRead.Add(1)
	return a.ProcessFrame(ctx, frame), nil
}

// ProcessFrame runs detection on frame and emits at most one event.
func (a *App) ProcessFrame(ctx context.Context, frame *gocv.Mat) *event.Detection {
	a.pushLive(frame)

	if !a.Armed() {
		a.metrics.FramesIdle.Add(1)
		return nil
	}

	if open, changed := a.config.Motion.Open(frame); !open {
		a.metrics.FramesGated.Add(1)
		a.log.Trace().Float64("changed_pct", changed).Msg("no motion")
		return nil
	}

	start := a.clock.Now()
	persons, err := a.config.Detector.Detect(frame)
	a.metrics.UpdateDetectLatency(a.clock.Since(start))
	if err != nil {
		a.metrics.DetectErrors.Add(1)
		a.log.Error().Err(err).Msg("detection failed")
		return nil
	}
	if len(persons) == 0 {
		return nil
	}
	a.metrics.PersonFrames.Add(1)

	best := highest(persons)

	switch d := a.config.Throttle.Allow(); d {
	case throttle.Accepted:
	case throttle.InCooldown:
		a.metrics.Throttled.Add(1)
		a.log.Trace().Float64("confidence", best.Confidence).Msg("suppressed by cooldown")
		return nil
	default:
		a.metrics.CapSuppressed.Add(1)
		a.log.Debug().Stringer("decision", d).Msg("suppressed by hourly cap")
		return nil
	}

	ev := a.classify(frame, best)
	ev = a.emit(ctx, frame, ev)
	return &ev
}

// classify builds the event for the chosen box, matching the face if a
// gallery is available.
func (a *App) classify(frame *gocv.Mat, best detector.Detection) event.Detection {
	name := ""
	dist := 0.0

	if a.config.Identifier != nil {
		m, err := a.config.Identifier.Identify(frame, best.Box)
		if err != nil {
			a.metrics.FaceErrors.Add(1)
			a.log.Warn().Err(err).Msg("face matching failed")
		}
		if m.Known() {
			name = m.Name
		}
		if !math.IsInf(m.Distance, 0) {
			dist = m.Distance
		}
	}

	ev := event.New(a.clock.Now(), event.Classify(name, face.Unknown), best.Confidence, best.Box, name, a.config.CameraIndex)
	ev.FaceDistance = dist
	return ev
}

// emit records ev everywhere it goes and returns it with the snapshot path
// and delivery flag filled in. Every sink failure is logged and none of them
// undoes the event.
func (a *App) emit(ctx context.Context, frame *gocv.Mat, ev event.Detection) event.Detection {
	if a.config.Snapshots != nil {
		path, err := a.config.Snapshots.Save(frame, snapshot.Annotation{
			Box:        ev.Box,
			Name:       ev.PersonName,
			Confidence: ev.Confidence,
			Intruder:   ev.Classification == event.Intruder,
			Time:       ev.Timestamp,
		})
		if err != nil {
			a.metrics.LogErrors.Add(1)
			a.log.Error().Err(err).Msg("failed to save snapshot")
		} else {
			ev = ev.WithImage(path)
		}
	}

	if a.config.CSV != nil {
		if err := a.config.CSV.Append(ev); err != nil {
			a.metrics.LogErrors.Add(1)
			a.log.Error().Err(err).Msg("failed to append detection row")
		}
	}

	if a.config.Store != nil {
		if err := a.config.Store.Detections().Create(ev); err != nil {
			a.metrics.LogErrors.Add(1)
			a.log.Error().Err(err).Msg("failed to store detection")
		}
	}

	if ev.Classification == event.Intruder {
		a.metrics.EventsIntruder.Add(1)
	} else {
		a.metrics.EventsAllowed.Add(1)
	}
	a.metrics.LastEventUnix.Store(ev.Timestamp.Unix())

	a.mu.Lock()
	a.last = &ev
	callbacks := append([]func(event.Detection){}, a.onEvent...)
	a.mu.Unlock()

	a.log.Info().
		Str("id", ev.ID).
		Str("classification", string(ev.Classification)).
		Str("person", ev.DisplayName()).
		Float64("confidence", ev.Confidence).
		Str("image", ev.ImagePath).
		Msg("detection")

	if a.config.Hooks != nil {
		if failed := a.config.Hooks.Run(ctx, ev); failed > 0 {
			a.metrics.HookFailures.Add(uint64(failed))
		}
	}

	if a.config.Publisher != nil {
		a.config.Publisher.Publish(ev)
	}

	if err := a.config.Notifier.SendDetection(ctx, ev); err != nil {
		a.metrics.NotifyFailed.Add(1)
		a.log.Error().Err(err).Str("id", ev.ID).Msg("failed to send alert")
	} else {
		a.metrics.NotifySent.Add(1)
		ev = ev.WithNotified()
		a.mu.Lock()
		if a.last != nil && a.last.ID == ev.ID {
			a.last = &ev
		}
		a.mu.Unlock()
		if a.config.Store != nil {
			if err := a.config.Store.Detections().MarkNotified(ev.ID); err != nil {
				a.log.Warn().Err(err).Str("id", ev.ID).Msg("failed to mark detection notified")
			}
		}
	}

	for _, fn := range callbacks {
		fn(ev)
	}
	return ev
}

func (a *App) pushLive(frame *gocv.Mat) {
	feed := a.config.Feed
	if feed == nil || !feed.Watching() {
		return
	}
	buf, err := gocv.IMEncode(".jpg", *frame)
	if err != nil {
		return
	}
	defer buf.Close()
	feed.Put(buf.GetBytes())
}

func highest(dets []detector.Detection) detector.Detection {
	best := dets[0]
	for _, d := range dets[1:] {
		if d.Confidence > best.Confidence {
			best = d
		}
	}
	return best
}
