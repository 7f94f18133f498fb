// Package notify delivers alerts to a Telegram chat.
package notify

import (
	"context"
	"time"

	"github.com/ayusman/doorcam/internal/event"
)

// Notifier sends alerts. Each call makes a single delivery attempt.
type Notifier interface {
	SendDetection(ctx context.Context, ev event.Detection) error
	SendStartup(ctx context.Context, info StartupInfo) error
	SendError(ctx context.Context, msg string) error
}

// StartupInfo describes the running service in the startup message.
type StartupInfo struct {
	Device          string
	Model           string
	FaceRecognition bool
	KnownFaces      int
	Started         time.Time
}
