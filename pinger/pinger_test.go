package pinger

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPing(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "receipt-tracker-pinger", r.UserAgent())
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := New(srv.URL, time.Minute)
	require.NoError(t, p.Ping(context.Background()))
	assert.EqualValues(t, 1, hits.Load())
}

func TestPingBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	err := New(srv.URL, time.Minute).Ping(context.Background())
	assert.ErrorContains(t, err, "503")
}

func TestScheduledPing(t *testing.T) {
	hit := make(chan struct{}, 10)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hit <- struct{}{}
	}))
	defer srv.Close()

	p := New(srv.URL, time.Second)
	require.NoError(t, p.Start())

	select {
	case <-hit:
	case <-time.After(5 * time.Second):
		t.Fatal("no ping within 5s")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	p.Stop(ctx)
}

func TestStartRejectsBadInterval(t *testing.T) {
	p := New("http://localhost", 0)
	assert.Error(t, p.Start())
}
