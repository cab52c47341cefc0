package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"receipt-tracker/config"
	"receipt-tracker/middleware"
	"receipt-tracker/models"
	"receipt-tracker/pinger"
	"receipt-tracker/service"
	"receipt-tracker/stats"
	"receipt-tracker/storage"
	"receipt-tracker/templates"
	"receipt-tracker/tracker"
	"receipt-tracker/utils"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/ulule/limiter/v3"
)

const version = "1.1.0"

// Deps are the collaborators built in main and injected into the server.
type Deps struct {
	Store    storage.Store
	Counter  *stats.Counter
	Notifier tracker.OpenNotifier
	Pixel    []byte
}

type Server struct {
	router   *gin.Engine
	config   *config.Config
	deps     Deps
	tracker  *tracker.Tracker
	receipts *service.ReceiptService
	pinger   *pinger.Pinger
	server   *http.Server
}

func NewServer(cfg *config.Config, deps Deps) (*Server, error) {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.RequestID(), middleware.Logger(), middleware.Recovery())

	tmpl, err := templates.Parse("logs.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	router.SetHTMLTemplate(tmpl)

	var opts []tracker.Option
	var resetter service.CounterResetter
	if deps.Counter != nil {
		opts = append(opts, tracker.WithCounter(deps.Counter))
		resetter = deps.Counter
	}
	if deps.Notifier != nil {
		opts = append(opts, tracker.WithNotifier(deps.Notifier))
		if cfg.Notify.Rate != "" {
			rate, err := limiter.NewRateFromFormatted(cfg.Notify.Rate)
			if err != nil {
				return nil, fmt.Errorf("invalid notify rate %q: %w", cfg.Notify.Rate, err)
			}
			opts = append(opts, tracker.WithNotifyRate(rate))
		}
	}
	if len(deps.Pixel) > 0 {
		opts = append(opts, tracker.WithPixel(deps.Pixel))
	}

	s := &Server{
		router:   router,
		config:   cfg,
		deps:     deps,
		tracker:  tracker.NewTracker(deps.Store, opts...),
		receipts: service.NewReceiptService(deps.Store, resetter),
	}

	if cfg.Ping.URL != "" {
		s.pinger = pinger.New(cfg.Ping.URL, cfg.Ping.Interval)
	}

	if err := s.setupRoutes(); err != nil {
		return nil, err
	}

	log.Info().
		Str("env", cfg.App.Env).
		Str("storage", cfg.Storage.Driver).
		Bool("realtime_stats", deps.Counter != nil).
		Bool("notifications", deps.Notifier != nil).
		Str("pixel_type", s.tracker.ContentType()).
		Msg("server configured")

	return s, nil
}

func (s *Server) setupRoutes() error {
	limit, err := middleware.NewLimiter(s.config.Limiter.Rate)
	if err != nil {
		return err
	}

	// Health check
	s.router.GET("/", s.healthCheck)
	s.router.GET("/health", s.healthCheck)

	// Track email opens
	s.router.GET("/track", s.trackEmailOpen)
	s.router.GET("/pixel", s.trackEmailOpen)

	// Log viewer
	listing := s.router.Group("/", gzip.Gzip(gzip.DefaultCompression))
	listing.GET("/logs", s.getLogs)
	listing.GET("/download_log", s.downloadLog)
	s.router.POST("/logs", s.clearLogs)
	s.router.POST("/logs/clear", s.clearLogs)

	// Send-time registration
	s.router.POST("/log-email", limit, s.logEmail)
	s.router.POST("/upload", limit, s.uploadRecipients)

	s.router.GET("/stats", s.realtimeStats)

	return nil
}

func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "healthy",
		"service":     "receipt-tracker",
		"version":     version,
		"environment": s.config.App.Env,
		"storage":     s.config.Storage.Driver,
		"base_url":    s.config.GetBaseURL(c.Request.Host),
	})
}

func (s *Server) trackEmailOpen(c *gin.Context) {
	email := strings.TrimSpace(c.Query("email"))
	if email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": tracker.ErrMissingEmail.Error()})
		return
	}

	_, err := s.tracker.TrackEmailOpen(c.Request.Context(), email, utils.GetClientIP(c.Request), c.Request.UserAgent())
	if err != nil {
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record view"})
		return
	}

	s.tracker.ServePixel(c.Writer)
}

func (s *Server) getLogs(c *gin.Context) {
	logs, err := s.receipts.Logs(c.Request.Context())
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no logs found"})
		return
	}
	if err != nil {
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read logs"})
		return
	}

	if wantsHTML(c) {
		c.HTML(http.StatusOK, "logs.html", gin.H{
			"title": "Email Read Receipts",
			"logs":  logs,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"logs": logs})
}

func wantsHTML(c *gin.Context) bool {
	switch c.Query("format") {
	case "html":
		return true
	case "json":
		return false
	}
	return c.NegotiateFormat(gin.MIMEJSON, gin.MIMEHTML) == gin.MIMEHTML
}

func (s *Server) clearLogs(c *gin.Context) {
	if err := s.receipts.Clear(c.Request.Context()); err != nil {
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to clear logs"})
		return
	}
	log.Info().Str("ip", c.ClientIP()).Msg("logs cleared")
	c.Redirect(http.StatusFound, "/logs")
}

func (s *Server) downloadLog(c *gin.Context) {
	var buf bytes.Buffer
	n, err := s.receipts.ExportCSV(c.Request.Context(), &buf)
	if err != nil {
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to export logs"})
		return
	}
	if n == 0 {
		c.String(http.StatusOK, "no records")
		return
	}

	c.Header("Content-Disposition", `attachment; filename="email_logs.csv"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

func (s *Server) logEmail(c *gin.Context) {
	var req models.SendTimeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": service.ErrMissingFields.Error()})
		return
	}

	ev, err := s.receipts.RegisterSend(c.Request.Context(), req.Email, req.SendTime)
	switch {
	case errors.Is(err, service.ErrMissingFields), errors.Is(err, service.ErrInvalidSendTime):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record send time"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":   "send time recorded",
		"email":     ev.Email,
		"send_time": utils.DisplayTime(ev.SendTime),
	})
}

func (s *Server) uploadRecipients(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	if strings.ToLower(filepath.Ext(header.Filename)) != ".csv" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "only .csv files are accepted"})
		return
	}

	f, err := header.Open()
	if err != nil {
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read upload"})
		return
	}
	defer f.Close()

	n, err := s.receipts.ImportRecipients(c.Request.Context(), f)
	switch {
	case errors.Is(err, service.ErrInvalidSendTime),
		errors.Is(err, service.ErrEmptyUpload),
		errors.Is(err, service.ErrMalformedUpload):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store recipients"})
		return
	}

	log.Info().Int("recipients", n).Str("file", header.Filename).Msg("recipient list uploaded")
	c.Redirect(http.StatusFound, "/logs")
}

func (s *Server) realtimeStats(c *gin.Context) {
	if s.deps.Counter == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "realtime stats disabled"})
		return
	}

	rt, err := s.deps.Counter.Realtime(c.Request.Context(), strings.TrimSpace(c.Query("email")))
	if err != nil {
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to retrieve realtime stats"})
		return
	}
	c.JSON(http.StatusOK, rt)
}

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%s", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if s.pinger != nil {
		if err := s.pinger.Start(); err != nil {
			return err
		}
	}

	log.Info().Str("addr", addr).Str("base_url", s.config.GetBaseURL("")).Msg("server starting")

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	return nil
}

// Shutdown stops the pinger, drains requests and pending notifications,
// then releases storage.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.pinger != nil {
		s.pinger.Stop(ctx)
	}

	var errs []error
	if s.server != nil {
		errs = append(errs, s.server.Shutdown(ctx))
	}
	errs = append(errs, s.tracker.Close(ctx))
	if s.deps.Counter != nil {
		errs = append(errs, s.deps.Counter.Close())
	}
	errs = append(errs, s.deps.Store.Close())
	return errors.Join(errs...)
}
