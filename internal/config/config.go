// Package config holds the process-wide settings for the door camera.
// Settings are loaded once at startup and never mutated afterwards.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// ErrInvalid is returned when the configuration fails validation.
var ErrInvalid = errors.New("invalid configuration")

// EnvPrefix is the prefix of every environment variable read by Load.
const EnvPrefix = "DOORCAM_"

// DefaultTelegramAPI is the Telegram Bot API base URL.
const DefaultTelegramAPI = "https://api.telegram.org"

// Config holds every tunable of the service.
type Config struct {
	// Camera
	CameraIndex int `validate:"gte=0"`
	Width       int `validate:"gt=0"`
	Height      int `validate:"gt=0"`
	FPS         int `validate:"gt=0,lte=120"`

	// Detection
	ConfidenceThreshold  float64       `validate:"gte=0,lte=1"`
	MinDetectionInterval time.Duration `validate:"gte=0"`
	MaxAlertsPerHour     int           `validate:"gte=0"`
	MotionThreshold      float64       `validate:"gte=0,lte=100"`

	// Face recognition
	FaceRecognitionEnabled bool
	FaceThreshold          float64 `validate:"gt=0"`
	KnownFacesDir          string  `validate:"required"`
	ModelsDir              string

	// Telegram
	BotToken                string `validate:"required"`
	ChatID                  string `validate:"required"`
	TelegramAPI             string `validate:"required,url"`
	SendImageWithAlert      bool
	SendStartupNotification bool
	SendErrorNotifications  bool

	// Storage
	DetectionsDir string `validate:"required"`
	DBPath        string `validate:"required"`
	HooksDir      string
	RetentionDays int `validate:"gte=1"`

	// Detector helper process
	PersonScript string
	PythonPath   string

	// Ambient
	HTTPAddr  string
	LogLevel  string `validate:"oneof=trace debug info warn error"`
	LogFormat string `validate:"oneof=console json"`
}

// Default returns a Config with the defaults of a Raspberry Pi door camera install.
// Data lives under ~/.doorcam unless DOORCAM_HOME says otherwise.
func Default() Config {
	home := dataDir()
	return Config{
		CameraIndex: 0,
		Width:       1280,
		Height:      720,
		FPS:         15,

		ConfidenceThreshold:  0.5,
		MinDetectionInterval: 2 * time.Second,
		MaxAlertsPerHour:     60,
		MotionThreshold:      0,

		FaceRecognitionEnabled: true,
		FaceThreshold:          0.6,
		KnownFacesDir:          filepath.Join(home, "known_faces"),
		ModelsDir:              filepath.Join(home, "models"),

		TelegramAPI:             DefaultTelegramAPI,
		SendImageWithAlert:      true,
		SendStartupNotification: true,
		SendErrorNotifications:  true,

		DetectionsDir: filepath.Join(home, "detections"),
		DBPath:        filepath.Join(home, "doorcam.db"),
		HooksDir:      filepath.Join(home, "hooks"),
		RetentionDays: 7,

		LogLevel:  "info",
		LogFormat: "console",
	}
}

func dataDir() string {
	if d := strings.TrimSpace(os.Getenv(EnvPrefix + "HOME")); d != "" {
		return d
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".doorcam"
	}
	return filepath.Join(home, ".doorcam")
}

// Load builds a Config from defaults overlaid with DOORCAM_* environment variables.
// The result is not validated; call Validate once flags have been applied.
func Load() Config {
	c := Default()
	env := NewEnv().Prefix(EnvPrefix)

	c.CameraIndex = env.MayInt("CAMERA_INDEX", c.CameraIndex)
	c.Width = env.MayInt("WIDTH", c.Width)
	c.Height = env.MayInt("HEIGHT", c.Height)
	c.FPS = env.MayInt("FPS", c.FPS)

	c.ConfidenceThreshold = env.MayFloat("CONFIDENCE_THRESHOLD", c.ConfidenceThreshold)
	c.MinDetectionInterval = env.MayDuration("MIN_DETECTION_INTERVAL", c.MinDetectionInterval)
	c.MaxAlertsPerHour = env.MayInt("MAX_ALERTS_PER_HOUR", c.MaxAlertsPerHour)
	c.MotionThreshold = env.MayFloat("MOTION_THRESHOLD", c.MotionThreshold)

	c.FaceRecognitionEnabled = env.MayBool("FACE_RECOGNITION", c.FaceRecognitionEnabled)
	c.FaceThreshold = env.MayFloat("FACE_THRESHOLD", c.FaceThreshold)
	c.KnownFacesDir = env.MayString("KNOWN_FACES_DIR", c.KnownFacesDir)
	c.ModelsDir = env.MayString("MODELS_DIR", c.ModelsDir)

	c.BotToken = env.MayString("BOT_TOKEN", c.BotToken)
	c.ChatID = env.MayString("CHAT_ID", c.ChatID)
	c.TelegramAPI = env.MayString("TELEGRAM_API", c.TelegramAPI)
	c.SendImageWithAlert = env.MayBool("SEND_IMAGE", c.SendImageWithAlert)
	c.SendStartupNotification = env.MayBool("STARTUP_NOTIFICATION", c.SendStartupNotification)
	c.SendErrorNotifications = env.MayBool("ERROR_NOTIFICATIONS", c.SendErrorNotifications)

	c.DetectionsDir = env.MayString("DETECTIONS_DIR", c.DetectionsDir)
	c.DBPath = env.MayString("DB_PATH", c.DBPath)
	c.HooksDir = env.MayString("HOOKS_DIR", c.HooksDir)
	c.RetentionDays = env.MayInt("RETENTION_DAYS", c.RetentionDays)

	c.PersonScript = env.MayString("PERSON_SCRIPT", c.PersonScript)
	c.PythonPath = env.MayString("PYTHON", c.PythonPath)

	c.HTTPAddr = env.MayString("HTTP_ADDR", c.HTTPAddr)
	c.LogLevel = strings.ToLower(env.MayString("LOG_LEVEL", c.LogLevel))
	c.LogFormat = strings.ToLower(env.MayString("LOG_FORMAT", c.LogFormat))

	return c
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration. Every violation is reported in one error
// that wraps ErrInvalid.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			msgs = append(msgs, fmt.Sprintf("%s is required", fe.Field()))
			continue
		}
		msgs = append(msgs, fmt.Sprintf("%s=%v fails %s=%s", fe.Field(), fe.Value(), fe.Tag(), fe.Param()))
	}
	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, "; "))
}

// FrameInterval is the time budget of one loop iteration at the configured FPS.
func (c Config) FrameInterval() time.Duration {
	if c.FPS <= 0 {
		return time.Second
	}
	return time.Second / time.Duration(c.FPS)
}

// EnsureDirs creates the data directories the service writes to.
func (c Config) EnsureDirs() error {
	dirs := []string{c.DetectionsDir, c.KnownFacesDir, filepath.Dir(c.DBPath)}
	for _, d := range dirs {
		if d == "" {
			continue
		}
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", d, err)
		}
	}
	return nil
}

// CSVPath is the detection log.
func (c Config) CSVPath() string {
	return filepath.Join(c.DetectionsDir, "detections.csv")
}

// LogPath is the rotating text log.
func (c Config) LogPath() string {
	return filepath.Join(c.DetectionsDir, "camera.log")
}
