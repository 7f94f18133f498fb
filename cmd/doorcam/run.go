package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/spf13/cobra"

	"github.com/ayusman/doorcam/internal/app"
	"github.com/ayusman/doorcam/internal/capture"
	"github.com/ayusman/doorcam/internal/detector"
	"github.com/ayusman/doorcam/internal/event"
	"github.com/ayusman/doorcam/internal/eventlog"
	"github.com/ayusman/doorcam/internal/face"
	"github.com/ayusman/doorcam/internal/hook"
	"github.com/ayusman/doorcam/internal/logger"
	"github.com/ayusman/doorcam/internal/metrics"
	"github.com/ayusman/doorcam/internal/notify"
	"github.com/ayusman/doorcam/internal/retention"
	"github.com/ayusman/doorcam/internal/server"
	"github.com/ayusman/doorcam/internal/snapshot"
	"github.com/ayusman/doorcam/internal/store"
	"github.com/ayusman/doorcam/internal/throttle"
	"github.com/ayusman/doorcam/internal/tray"
)

var (
	runTray bool
	runHTTP string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the detection loop",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("http") {
			cfg.HTTPAddr = runHTTP
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		return run(cmd.Context())
	},
}

func init() {
	runCmd.Flags().BoolVar(&runTray, "tray", false, "show a system tray icon")
	runCmd.Flags().StringVar(&runHTTP, "http", "", "status server address, e.g. 127.0.0.1:8080")
}

func newNotifier() (*notify.TelegramNotifier, error) {
	return notify.NewTelegram(notify.Options{
		Token:           cfg.BotToken,
		ChatID:          cfg.ChatID,
		APIURL:          cfg.TelegramAPI,
		SendImage:       cfg.SendImageWithAlert,
		StartupMessages: cfg.SendStartupNotification,
		ErrorMessages:   cfg.SendErrorNotifications,
	})
}

// loadIdentifier returns nil when face recognition is off or unusable; the
// loop then classifies every person as an intruder.
func loadIdentifier(log logger.Logger) (*face.Identifier, int) {
	if !cfg.FaceRecognitionEnabled {
		log.Info().Msg("face recognition disabled by configuration")
		return nil, 0
	}

	gallery, err := face.LoadGallery(cfg.KnownFacesDir, log)
	if err != nil {
		log.Warn().Err(err).Msg("face recognition disabled: cannot read gallery")
		return nil, 0
	}
	if len(gallery) == 0 {
		log.Warn().Str("dir", cfg.KnownFacesDir).Msg("face recognition disabled: no known faces")
		return nil, 0
	}

	emb, err := face.NewDlibEmbedder(cfg.ModelsDir)
	if err != nil {
		log.Warn().Err(err).Msg("face recognition disabled: cannot load dlib models")
		return nil, 0
	}

	m := face.NewMatcher(gallery, cfg.FaceThreshold)
	log.Info().Strs("known", m.Names()).Float64("threshold", cfg.FaceThreshold).Msg("face recognizer loaded")
	return face.NewIdentifier(emb, m), len(gallery)
}

func run(ctx context.Context) (err error) {
	log := logger.With("doorcam")

	st, err := store.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	csv, err := eventlog.Open(cfg.CSVPath())
	if err != nil {
		return fmt.Errorf("open detection log: %w", err)
	}
	defer csv.Close()

	dcfg := detector.DefaultConfig()
	dcfg.Script = cfg.PersonScript
	dcfg.Python = cfg.PythonPath
	dcfg.MinConfidence = min(dcfg.MinConfidence, cfg.ConfidenceThreshold)
	yolo, err := detector.NewYOLODetector(dcfg)
	if err != nil {
		return fmt.Errorf("person detector: %w", err)
	}

	notifier, err := newNotifier()
	if err != nil {
		return err
	}

	identifier, known := loadIdentifier(log)
	if identifier != nil {
		defer identifier.Close()
	}

	hooks := hook.NewManager(cfg.HooksDir)
	if err := hooks.Discover(); err != nil {
		log.Warn().Err(err).Msg("hook discovery failed")
	}

	m := metrics.New()
	hub := server.NewHub(logger.With("ws"))
	defer hub.Close()
	feed := server.NewLiveFeed()

	appCfg := app.Config{
		Camera: capture.NewCamera(capture.Options{
			DeviceID: cfg.CameraIndex,
			Width:    cfg.Width,
			Height:   cfg.Height,
			FPS:      cfg.FPS,
		}),
		Detector:      detector.NewPersonFilter(yolo, cfg.ConfidenceThreshold),
		Notifier:      notifier,
		Throttle:      throttle.New(cfg.MinDetectionInterval, cfg.MaxAlertsPerHour, nil),
		Snapshots:     snapshot.NewWriter(cfg.DetectionsDir),
		CSV:           csv,
		Store:         st,
		Hooks:         hook.NewRunner(hooks, hook.NewExecutor(hook.DefaultTimeout), logger.With("hook")),
		Publisher:     hub,
		Feed:          feed,
		Metrics:       m,
		CameraIndex:   cfg.CameraIndex,
		FrameInterval: cfg.FrameInterval(),
		Startup: &notify.StartupInfo{
			Device:          fmt.Sprintf("camera %d (%dx%d @ %d fps)", cfg.CameraIndex, cfg.Width, cfg.Height, cfg.FPS),
			Model:           dcfg.Model,
			FaceRecognition: identifier != nil,
			KnownFaces:      known,
		},
		Logger: *logger.Get(),
	}
	if identifier != nil {
		appCfg.Identifier = identifier
	}
	if cfg.MotionThreshold > 0 {
		appCfg.Motion = capture.NewMotionGate(cfg.MotionThreshold)
	}

	loop, err := app.New(appCfg)
	if err != nil {
		return err
	}

	sweeper, err := retention.NewScheduler(cfg.DetectionsDir, cfg.RetentionDays, time.Hour, logger.With("retention"))
	if err != nil {
		return err
	}
	sweeper.Start()
	defer sweeper.Stop()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if cfg.HTTPAddr != "" {
		srv := server.New(server.Config{
			Store:     st,
			Metrics:   m,
			Hub:       hub,
			Feed:      feed,
			Switch:    loop,
			Status:    func() any { return loop.Status() },
			ImagesDir: cfg.DetectionsDir,
			Logger:    logger.With("http"),
		})
		go func() {
			log.Info().Str("addr", cfg.HTTPAddr).Msg("status server listening")
			if err := srv.Serve(ctx, cfg.HTTPAddr); err != nil {
				log.Error().Err(err).Msg("status server stopped")
			}
		}()
	}

	if !runTray {
		return loop.Run(ctx)
	}

	// systray must own the main goroutine, so the loop moves to a helper.
	t := tray.New(loop)
	t.OnQuit(cancel)
	t.OnError(func(err error) { log.Error().Err(err).Msg("tray action failed") })
	if cfg.HTTPAddr != "" {
		t.SetStatusURL(statusURL(cfg.HTTPAddr))
	}
	if last, ok := loop.LastEvent(); ok {
		t.SetLastEvent(last)
	}
	loop.OnEvent(func(ev event.Detection) { t.SetLastEvent(ev) })

	done := make(chan error, 1)
	go func() {
		done <- loop.Run(ctx)
		t.Quit()
	}()
	t.Run()
	cancel()

	err = <-done
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// statusURL turns a listen address into a browsable URL. Wildcard hosts are
// replaced by loopback.
func statusURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr + "/api/status"
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port) + "/api/status"
}
