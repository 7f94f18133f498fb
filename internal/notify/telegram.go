package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/hashicorp/go-cleanhttp"

	"github.com/ayusman/doorcam/internal/event"
)

// ErrDisabled is returned by sends that the configuration switched off.
var ErrDisabled = errors.New("notification disabled")

const timeLayout = "2006-01-02 15:04:05"

// Options configures a TelegramNotifier.
type Options struct {
	Token           string
	ChatID          string
	APIURL          string
	SendImage       bool
	StartupMessages bool
	ErrorMessages   bool
	Timeout         time.Duration
	Client          *http.Client
}

// TelegramNotifier sends alerts through the Bot API. It never polls for
// updates; every send is one request.
type TelegramNotifier struct {
	opts Options
	bot  *bot.Bot
	now  func() time.Time
}

// NewTelegram creates a notifier. Missing APIURL defaults to the public API.
func NewTelegram(opts Options) (*TelegramNotifier, error) {
	if opts.APIURL == "" {
		opts.APIURL = "https://api.telegram.org"
	}
	opts.APIURL = strings.TrimRight(opts.APIURL, "/")
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	client := opts.Client
	if client == nil {
		client = cleanhttp.DefaultClient()
		client.Timeout = opts.Timeout
	}

	b, err := bot.New(opts.Token,
		bot.WithSkipGetMe(),
		bot.WithServerURL(opts.APIURL),
		bot.WithHTTPClient(opts.Timeout, client),
	)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}

	return &TelegramNotifier{opts: opts, bot: b, now: time.Now}, nil
}

// SendDetection posts a detection alert, with the snapshot attached when one
// exists and images are enabled.
func (n *TelegramNotifier) SendDetection(ctx context.Context, ev event.Detection) error {
	caption := DetectionMessage(ev)

	if n.opts.SendImage && ev.ImagePath != "" {
		if _, err := os.Stat(ev.ImagePath); err == nil {
			return n.sendPhoto(ctx, ev.ImagePath, caption)
		}
	}
	return n.sendMessage(ctx, caption)
}

// SendStartup posts the service-online message.
func (n *TelegramNotifier) SendStartup(ctx context.Context, info StartupInfo) error {
	if !n.opts.StartupMessages {
		return ErrDisabled
	}
	if info.Started.IsZero() {
		info.Started = n.now()
	}
	return n.sendMessage(ctx, StartupMessage(info))
}

// SendError posts a system error message.
func (n *TelegramNotifier) SendError(ctx context.Context, msg string) error {
	if !n.opts.ErrorMessages {
		return ErrDisabled
	}
	return n.sendMessage(ctx, ErrorMessage(msg, n.now()))
}

// SendText posts a message already formatted as MarkdownV2.
func (n *TelegramNotifier) SendText(ctx context.Context, text string) error {
	return n.sendMessage(ctx, text)
}

func (n *TelegramNotifier) sendMessage(ctx context.Context, text string) error {
	_, err := n.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    n.opts.ChatID,
		Text:      text,
		ParseMode: models.ParseModeMarkdown,
	})
	return apiError("sendMessage", err)
}

func (n *TelegramNotifier) sendPhoto(ctx context.Context, path, caption string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open photo: %w", err)
	}
	defer f.Close()

	_, err = n.bot.SendPhoto(ctx, &bot.SendPhotoParams{
		ChatID:    n.opts.ChatID,
		Photo:     &models.InputFileUpload{Filename: filepath.Base(path), Data: f},
		Caption:   caption,
		ParseMode: models.ParseModeMarkdown,
	})
	return apiError("sendPhoto", err)
}

// APIError is a failed Bot API call. Err carries the client's error, so
// errors.Is works against the bot package sentinels.
type APIError struct {
	Method string
	Err    error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s: %v", e.Method, e.Err)
}

func (e *APIError) Unwrap() error { return e.Err }

// apiError classifies err. Transport failures drop the url.Error wrapper,
// whose message embeds the request URL and with it the bot token.
func apiError(method string, err error) error {
	if err == nil {
		return nil
	}
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return fmt.Errorf("telegram %s: %w", method, uerr.Err)
	}
	return &APIError{Method: method, Err: err}
}
