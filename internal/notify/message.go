package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-telegram/bot"

	"github.com/ayusman/doorcam/internal/event"
)

const footer = "\n_doorcam_"

// message builds a MarkdownV2 message. Everything except the markup it adds
// itself is escaped.
type message struct {
	b strings.Builder
}

func (m *message) title(icon, text string) {
	fmt.Fprintf(&m.b, "%s *%s*\n\n", icon, bot.EscapeMarkdown(text))
}

func (m *message) field(label, value string) {
	fmt.Fprintf(&m.b, "*%s:* %s\n", bot.EscapeMarkdown(label), bot.EscapeMarkdown(value))
}

func (m *message) line(text string) {
	m.b.WriteString(bot.EscapeMarkdown(text))
	m.b.WriteString("\n")
}

func (m *message) String() string {
	return m.b.String() + footer
}

// DetectionMessage renders the alert caption.
func DetectionMessage(ev event.Detection) string {
	level, dot := "Person Detected", "🟢"
	if ev.Classification == event.Intruder {
		level, dot = "INTRUDER ALERT", "🔴"
	}

	var m message
	m.title(dot, level)
	m.field("Status", string(ev.Classification))
	m.field("Confidence", fmt.Sprintf("%.1f%%", ev.Confidence*100))
	m.field("Person", ev.DisplayName())
	m.field("Time", ev.Timestamp.Format(timeLayout))
	return m.String()
}

// StartupMessage renders the service-online message.
func StartupMessage(info StartupInfo) string {
	face := "Disabled"
	if info.FaceRecognition {
		face = fmt.Sprintf("Enabled (%d known)", info.KnownFaces)
	}

	var m message
	m.title("✅", "Door Camera Online")
	if info.Device != "" {
		m.field("Device", info.Device)
	}
	m.field("Started", info.Started.Format(timeLayout))
	if info.Model != "" {
		m.field("Model", info.Model)
	}
	m.field("Face Recognition", face)
	m.field("Status", "Ready for detections")
	return m.String()
}

// ErrorMessage renders a system error alert.
func ErrorMessage(msg string, at time.Time) string {
	var m message
	m.title("⚠️", "System Error")
	m.field("Error", msg)
	m.field("Time", at.Format(timeLayout))
	return m.String()
}

// TestMessage renders the reply to `doorcam test-notify`.
func TestMessage() string {
	var m message
	m.title("✅", "Telegram Bot Test Successful")
	m.line("Your door camera is configured correctly. Alerts will arrive in this chat.")
	return m.String()
}
