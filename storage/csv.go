package storage

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"receipt-tracker/models"
)

var (
	ViewHeader = []string{"Timestamp", "Email", "Send Time", "Client IP", "User-Agent"}
	SendHeader = []string{"Timestamp", "Email", "Send Time"}
)

const csvTimeLayout = time.RFC3339Nano

// CSVStore appends events to two delimited files. Ids are 1-based row
// numbers below the header.
type CSVStore struct {
	mu        sync.Mutex
	viewsPath string
	sendsPath string
}

func NewCSVStore(viewsPath, sendsPath string) (*CSVStore, error) {
	for _, p := range []string{viewsPath, sendsPath} {
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			return nil, fmt.Errorf("create dir for %s: %w", p, err)
		}
	}
	return &CSVStore{viewsPath: viewsPath, sendsPath: sendsPath}, nil
}

func (s *CSVStore) AddView(ctx context.Context, ev *models.ViewEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := readRows(s.viewsPath)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}

	sendTime := ""
	if ev.SendTime != nil {
		sendTime = ev.SendTime.UTC().Format(csvTimeLayout)
	}
	record := []string{
		ev.ViewedAt.UTC().Format(csvTimeLayout),
		ev.Email,
		sendTime,
		ev.ClientIP,
		ev.UserAgent,
	}
	if err := appendRows(s.viewsPath, ViewHeader, [][]string{record}); err != nil {
		return fmt.Errorf("append view: %w", err)
	}
	ev.ID = uint64(len(rows) + 1)
	return nil
}

func (s *CSVStore) ListViews(ctx context.Context) ([]models.ViewEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := readRows(s.viewsPath)
	if err != nil {
		return nil, err
	}

	views := make([]models.ViewEvent, 0, len(rows))
	for i, row := range rows {
		if len(row) != len(ViewHeader) {
			return nil, fmt.Errorf("%s row %d: want %d fields, got %d", s.viewsPath, i+1, len(ViewHeader), len(row))
		}
		viewedAt, err := time.Parse(csvTimeLayout, row[0])
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", s.viewsPath, i+1, err)
		}
		ev := models.ViewEvent{
			ID:        uint64(i + 1),
			ViewedAt:  viewedAt.UTC(),
			Email:     row[1],
			ClientIP:  row[3],
			UserAgent: row[4],
		}
		if row[2] != "" {
			st, err := time.Parse(csvTimeLayout, row[2])
			if err != nil {
				return nil, fmt.Errorf("%s row %d: %w", s.viewsPath, i+1, err)
			}
			st = st.UTC()
			ev.SendTime = &st
		}
		views = append(views, ev)
	}
	return views, nil
}

func (s *CSVStore) CountViews(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := readRows(s.viewsPath)
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return int64(len(rows)), nil
}

// ClearViews truncates the file down to its header, so a later listing
// is empty rather than missing.
func (s *CSVStore) ClearViews(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Create(s.viewsPath)
	if err != nil {
		return fmt.Errorf("truncate views: %w", err)
	}
	w := csv.NewWriter(f)
	w.Write(ViewHeader)
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("write header: %w", err)
	}
	return f.Close()
}

func (s *CSVStore) AddSend(ctx context.Context, ev *models.SendEvent) error {
	evs := []models.SendEvent{*ev}
	if err := s.AddSends(ctx, evs); err != nil {
		return err
	}
	ev.ID = evs[0].ID
	return nil
}

func (s *CSVStore) AddSends(ctx context.Context, evs []models.SendEvent) error {
	if len(evs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := readRows(s.sendsPath)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}

	records := make([][]string, 0, len(evs))
	for _, ev := range evs {
		records = append(records, []string{
			ev.CreatedAt.UTC().Format(csvTimeLayout),
			ev.Email,
			ev.SendTime.UTC().Format(csvTimeLayout),
		})
	}
	// A single buffered write keeps the batch together
	if err := appendRows(s.sendsPath, SendHeader, records); err != nil {
		return fmt.Errorf("append send events: %w", err)
	}
	for i := range evs {
		evs[i].ID = uint64(len(rows) + i + 1)
	}
	return nil
}

func (s *CSVStore) LatestSend(ctx context.Context, email string) (*models.SendEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := readRows(s.sendsPath)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNoSendEvent
	}
	if err != nil {
		return nil, err
	}

	var latest *models.SendEvent
	for i, row := range rows {
		if len(row) != len(SendHeader) || row[1] != email {
			continue
		}
		sendTime, err := time.Parse(csvTimeLayout, row[2])
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", s.sendsPath, i+1, err)
		}
		// Later rows win ties
		if latest != nil && sendTime.Before(latest.SendTime) {
			continue
		}
		createdAt, _ := time.Parse(csvTimeLayout, row[0])
		latest = &models.SendEvent{
			ID:        uint64(i + 1),
			Email:     row[1],
			SendTime:  sendTime.UTC(),
			CreatedAt: createdAt.UTC(),
		}
	}
	if latest == nil {
		return nil, ErrNoSendEvent
	}
	return latest, nil
}

func (s *CSVStore) Close() error {
	return nil
}

// readRows returns the data rows of a file, header excluded.
func readRows(path string) ([][]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	var rows [][]string
	for first := true; ; first = false {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		if first {
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func appendRows(path string, header []string, records [][]string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		w.Write(header)
	}
	w.WriteAll(records)
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
