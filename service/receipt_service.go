package service

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"receipt-tracker/models"
	"receipt-tracker/storage"
	"receipt-tracker/utils"

	"github.com/rs/zerolog/log"
)

var (
	ErrMissingFields   = errors.New("email and send_time are required")
	ErrInvalidSendTime = errors.New("invalid send_time")
	ErrEmptyUpload     = errors.New("uploaded file has no recipients")
	ErrMalformedUpload = errors.New("malformed upload")
)

// CounterResetter is satisfied by the realtime counters.
type CounterResetter interface {
	Reset(ctx context.Context) error
}

// ReceiptService backs the log viewer and the send-time recorder.
type ReceiptService struct {
	store   storage.Store
	counter CounterResetter
	now     func() time.Time
}

func NewReceiptService(store storage.Store, counter CounterResetter) *ReceiptService {
	return &ReceiptService{
		store:   store,
		counter: counter,
		now:     time.Now,
	}
}

func toEntry(v models.ViewEvent) models.LogEntry {
	return models.LogEntry{
		ID:        v.ID,
		Email:     v.Email,
		Timestamp: utils.DisplayTime(v.ViewedAt),
		SendTime:  utils.DisplayTimePtr(v.SendTime),
		ClientIP:  v.ClientIP,
		UserAgent: v.UserAgent,
	}
}

// Logs returns every view with times converted for display. The error
// wraps storage.ErrNotFound when nothing has been persisted yet.
func (s *ReceiptService) Logs(ctx context.Context) ([]models.LogEntry, error) {
	views, err := s.store.ListViews(ctx)
	if err != nil {
		return nil, err
	}

	entries := make([]models.LogEntry, 0, len(views))
	for _, v := range views {
		entries = append(entries, toEntry(v))
	}
	return entries, nil
}

func (s *ReceiptService) Clear(ctx context.Context) error {
	if err := s.store.ClearViews(ctx); err != nil {
		return err
	}
	if s.counter != nil {
		if err := s.counter.Reset(ctx); err != nil {
			log.Warn().Err(err).Msg("logs cleared, counters not reset")
		}
	}
	return nil
}

// ExportCSV writes the header and one row per view to w and returns the
// number of data rows.
func (s *ReceiptService) ExportCSV(ctx context.Context, w io.Writer) (int, error) {
	entries, err := s.Logs(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, nil
	}

	cw := csv.NewWriter(w)
	cw.Write(storage.ViewHeader)
	for _, e := range entries {
		cw.Write([]string{e.Timestamp, e.Email, e.SendTime, e.ClientIP, e.UserAgent})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return 0, fmt.Errorf("write csv: %w", err)
	}
	return len(entries), nil
}

// RegisterSend stores when email was sent. sendTime without an offset is
// read as UTC+9.
func (s *ReceiptService) RegisterSend(ctx context.Context, email, sendTime string) (*models.SendEvent, error) {
	email = strings.TrimSpace(email)
	sendTime = strings.TrimSpace(sendTime)
	if email == "" || sendTime == "" {
		return nil, ErrMissingFields
	}

	st, err := utils.ParseSendTime(sendTime)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSendTime, err)
	}

	ev := &models.SendEvent{
		Email:     email,
		SendTime:  st,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.AddSend(ctx, ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// ImportRecipients registers one send event per row of an uploaded file
// with rows "email[,send_time]". A header row is skipped, blank emails are
// ignored and a missing send time means now. Nothing is stored when any
// row is malformed.
func (s *ReceiptService) ImportRecipients(ctx context.Context, r io.Reader) (int, error) {
	cr := csv.NewReader(skipBOM(r))
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	now := s.now().UTC()
	var evs []models.SendEvent
	for line := 1; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("%w: line %d: %v", ErrMalformedUpload, line, err)
		}
		if len(row) == 0 {
			continue
		}

		email := strings.TrimSpace(row[0])
		if email == "" {
			continue
		}
		if line == 1 && strings.EqualFold(email, "email") {
			continue
		}

		st := now
		if len(row) > 1 && strings.TrimSpace(row[1]) != "" {
			st, err = utils.ParseSendTime(strings.TrimSpace(row[1]))
			if err != nil {
				return 0, fmt.Errorf("line %d: %w: %v", line, ErrInvalidSendTime, err)
			}
		}

		evs = append(evs, models.SendEvent{Email: email, SendTime: st, CreatedAt: now})
	}

	if len(evs) == 0 {
		return 0, ErrEmptyUpload
	}
	if err := s.store.AddSends(ctx, evs); err != nil {
		return 0, err
	}
	return len(evs), nil
}

// skipBOM drops the byte-order mark spreadsheet "CSV UTF-8" exports start
// with, so a quoted first field still parses.
func skipBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if ch, _, err := br.ReadRune(); err == nil && ch != '\ufeff' {
		br.UnreadRune()
	}
	return br
}
