package pinger

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Pinger requests a URL on a fixed interval so an idle-suspending host
// keeps the process awake.
type Pinger struct {
	url      string
	interval time.Duration
	client   *http.Client
	cron     *cron.Cron
}

func New(url string, interval time.Duration) *Pinger {
	return &Pinger{
		url:      url,
		interval: interval,
		client:   &http.Client{Timeout: 30 * time.Second},
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
	}
}

func (p *Pinger) Start() error {
	if p.interval < time.Second {
		return fmt.Errorf("ping interval %s below one second", p.interval)
	}
	if _, err := p.cron.AddFunc(fmt.Sprintf("@every %s", p.interval), p.run); err != nil {
		return fmt.Errorf("schedule ping: %w", err)
	}
	p.cron.Start()
	log.Info().Str("url", p.url).Dur("interval", p.interval).Msg("liveness pinger started")
	return nil
}

// Stop halts the schedule and waits for a running ping, bounded by ctx.
func (p *Pinger) Stop(ctx context.Context) {
	select {
	case <-p.cron.Stop().Done():
	case <-ctx.Done():
		log.Warn().Msg("liveness pinger did not stop in time")
	}
}

func (p *Pinger) run() {
	if err := p.Ping(context.Background()); err != nil {
		log.Warn().Err(err).Str("url", p.url).Msg("liveness ping failed")
	}
}

// Ping issues one GET and reports non-2xx answers as errors.
func (p *Pinger) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", "receipt-tracker-pinger")

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	log.Debug().Str("url", p.url).Int("status", resp.StatusCode).Msg("liveness ping ok")
	return nil
}
