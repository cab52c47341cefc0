package tracker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"receipt-tracker/models"
	"receipt-tracker/storage"
	"receipt-tracker/utils"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

var ErrMissingEmail = errors.New("email parameter is required")

const (
	notifyQueueSize = 64
	notifyTimeout   = 10 * time.Second
)

type OpenCounter interface {
	RecordOpen(ctx context.Context, email string) error
}

type OpenNotifier interface {
	NotifyOpen(ctx context.Context, view *models.ViewEvent) error
}

// Tracker records pixel loads and serves the pixel image.
type Tracker struct {
	store       storage.Store
	counter     OpenCounter
	notifier    OpenNotifier
	pixel       []byte
	contentType string
	now         func() time.Time

	throttle *limiter.Limiter
	mu       sync.RWMutex
	closed   bool
	notices  chan models.ViewEvent
	done     chan struct{}
}

type Option func(*Tracker)

func WithCounter(c OpenCounter) Option {
	return func(t *Tracker) { t.counter = c }
}

func WithNotifier(n OpenNotifier) Option {
	return func(t *Tracker) { t.notifier = n }
}

// WithNotifyRate caps how many notifications go out, all recipients
// together. Opens over the cap are still recorded.
func WithNotifyRate(rate limiter.Rate) Option {
	return func(t *Tracker) { t.throttle = limiter.New(memory.NewStore(), rate) }
}

// WithPixel replaces the built-in GIF. The content type is sniffed from
// the bytes.
func WithPixel(data []byte) Option {
	return func(t *Tracker) {
		t.pixel = data
		t.contentType = mimetype.Detect(data).String()
	}
}

func NewTracker(store storage.Store, opts ...Option) *Tracker {
	t := &Tracker{
		store:       store,
		pixel:       gifData,
		contentType: mimetype.Detect(gifData).String(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.notifier != nil {
		t.notices = make(chan models.ViewEvent, notifyQueueSize)
		t.done = make(chan struct{})
		go t.notifyLoop()
	}
	return t
}

// LoadPixel reads a replacement image from disk and rejects non-images.
func LoadPixel(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pixel: %w", err)
	}
	mt := mimetype.Detect(data)
	if !isImage(mt) {
		return nil, fmt.Errorf("pixel %s is %s, not an image", path, mt.String())
	}
	return data, nil
}

func isImage(mt *mimetype.MIME) bool {
	for m := mt; m != nil; m = m.Parent() {
		if strings.HasPrefix(m.String(), "image/") {
			return true
		}
	}
	return false
}

func (t *Tracker) ContentType() string {
	return t.contentType
}

// TrackEmailOpen stores one view for email, joined with the latest
// registered send time.
func (t *Tracker) TrackEmailOpen(ctx context.Context, email, clientIP, userAgent string) (*models.ViewEvent, error) {
	if email == "" {
		return nil, ErrMissingEmail
	}

	view := &models.ViewEvent{
		Email:     email,
		ViewedAt:  t.now().UTC(),
		ClientIP:  clientIP,
		UserAgent: userAgent,
	}

	send, err := t.store.LatestSend(ctx, email)
	switch {
	case err == nil:
		st := send.SendTime
		view.SendTime = &st
	case errors.Is(err, storage.ErrNoSendEvent):
	default:
		return nil, fmt.Errorf("lookup send time: %w", err)
	}

	if err := t.store.AddView(ctx, view); err != nil {
		return nil, err
	}

	device := utils.ParseUserAgent(userAgent)
	log.Info().
		Uint64("id", view.ID).
		Str("email", utils.MaskEmail(email)).
		Str("ip", clientIP).
		Str("device", device.DeviceType).
		Str("browser", device.Browser).
		Str("os", device.OS).
		Bool("has_send_time", view.SendTime != nil).
		Msg("📧 Email opened")

	if t.counter != nil {
		if err := t.counter.RecordOpen(ctx, email); err != nil {
			log.Warn().Err(err).Msg("failed to update open counters")
		}
	}

	if t.notifier != nil {
		t.enqueueNotice(ctx, *view)
	}

	return view, nil
}

func (t *Tracker) enqueueNotice(ctx context.Context, view models.ViewEvent) {
	if t.throttle != nil {
		lc, err := t.throttle.Get(ctx, "notify")
		if err != nil {
			log.Warn().Err(err).Msg("notify throttle unavailable")
		} else if lc.Reached {
			log.Debug().Str("email", utils.MaskEmail(view.Email)).Msg("notification skipped, rate reached")
			return
		}
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return
	}
	select {
	case t.notices <- view:
	default:
		log.Warn().Str("email", utils.MaskEmail(view.Email)).Msg("notification queue full, dropped")
	}
}

func (t *Tracker) notifyLoop() {
	defer close(t.done)
	for view := range t.notices {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		if err := t.notifier.NotifyOpen(ctx, &view); err != nil {
			log.Error().Err(err).Str("email", utils.MaskEmail(view.Email)).Msg("failed to send notification")
		}
		cancel()
	}
}

// Close stops accepting notifications and waits for queued ones to be
// sent, or for ctx to end.
func (t *Tracker) Close(ctx context.Context) error {
	if t.notices == nil {
		return nil
	}

	t.mu.Lock()
	if !t.closed {
		t.closed = true
		close(t.notices)
	}
	t.mu.Unlock()

	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("notifications still pending: %w", ctx.Err())
	}
}

func (t *Tracker) ServePixel(w http.ResponseWriter) {
	w.Header().Set("Content-Type", t.contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(t.pixel)))
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.WriteHeader(http.StatusOK)
	w.Write(t.pixel)
}

// 1x1 transparent GIF
var gifData = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61,
	0x01, 0x00, 0x01, 0x00, 0x80, 0x00,
	0x00, 0xff, 0xff, 0xff, 0x00, 0x00,
	0x00, 0x21, 0xf9, 0x04, 0x01, 0x00,
	0x00, 0x00, 0x00, 0x2c, 0x00, 0x00,
	0x00, 0x00, 0x01, 0x00, 0x01, 0x00,
	0x00, 0x02, 0x02, 0x44, 0x01, 0x00,
	0x3b,
}
