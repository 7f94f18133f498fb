package retention

import (
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"
)

// DefaultEvery is how often the scheduled sweep runs.
const DefaultEvery = time.Hour

// Scheduler runs Sweep periodically in the background.
type Scheduler struct {
	scheduler gocron.Scheduler
	dir       string
	days      int
	log       zerolog.Logger
	now       func() time.Time
	onSweep   func(Result)
}

// NewScheduler creates a stopped scheduler that sweeps dir every interval and
// once right after Start.
func NewScheduler(dir string, days int, every time.Duration, log zerolog.Logger) (*Scheduler, error) {
	if every <= 0 {
		every = DefaultEvery
	}

	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	rs := &Scheduler{
		scheduler: s,
		dir:       dir,
		days:      days,
		log:       log,
		now:       time.Now,
	}

	_, err = s.NewJob(
		gocron.DurationJob(every),
		gocron.NewTask(rs.run),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		s.Shutdown()
		return nil, err
	}
	return rs, nil
}

// OnSweep registers a callback invoked after every sweep. Call before Start.
func (s *Scheduler) OnSweep(fn func(Result)) {
	s.onSweep = fn
}

// Start begins scheduling.
func (s *Scheduler) Start() {
	s.scheduler.Start()
}

// Stop shuts the scheduler down and waits for a running sweep.
func (s *Scheduler) Stop() error {
	return s.scheduler.Shutdown()
}

func (s *Scheduler) run() {
	res, err := Sweep(s.dir, s.days, s.now())
	if err != nil {
		s.log.Error().Err(err).Str("dir", s.dir).Msg("retention sweep failed")
	}
	if res.Deleted > 0 {
		s.log.Info().Int("deleted", res.Deleted).Int64("bytes", res.Bytes).Msg("cleaned up old detection images")
	}
	if s.onSweep != nil {
		s.onSweep(res)
	}
}
