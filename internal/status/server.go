// Package status serves the operational HTTP endpoints: health, feed counters,
// recent logs, process samples and Prometheus metrics.
package status

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"quotestream/config"
	"quotestream/feed"
	"quotestream/logger"
)

// FeedStatus is the part of the feed connection the server reports on.
type FeedStatus interface {
	State() feed.State
	Symbols() []string
}

// Server exposes feed health, recent logs, process samples and Prometheus
// metrics over HTTP.
type Server struct {
	cfg        config.StatusConfig
	feed       FeedStatus
	log        *logger.Log
	logStore   *logStore
	sampler    *processSampler
	registry   *prometheus.Registry
	httpServer *http.Server
}

// NewServer returns nil when the status server is disabled.
func NewServer(cfg config.StatusConfig, fs FeedStatus, log *logger.Log) (*Server, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if fs == nil {
		return nil, errors.New("status: feed is required")
	}

	cfg.Address = normalizeAddress(cfg.Address)
	if cfg.LogHistory <= 0 {
		cfg.LogHistory = 200
	}
	if cfg.SampleInterval <= 0 {
		cfg.SampleInterval = 5 * time.Second
	}

	logStore := newLogStore(cfg.LogHistory)
	log.AddHook(logStore)

	return &Server{
		cfg:      cfg,
		feed:     fs,
		log:      log,
		logStore: logStore,
		sampler:  newProcessSampler(cfg.LogHistory, cfg.SampleInterval, log),
		registry: newRegistry(fs),
	}, nil
}

// Run serves until ctx is cancelled or the listener fails.
func (s *Server) Run(ctx context.Context) error {
	if s == nil {
		return nil
	}
	defer s.cleanup()

	router, err := s.buildRouter()
	if err != nil {
		return err
	}
	s.sampler.start(ctx)

	s.httpServer = &http.Server{
		Addr:              s.cfg.Address,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.log.WithComponent("status").WithField("address", s.cfg.Address).Info("status server listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) cleanup() {
	s.logStore.close()
	s.sampler.stop()
}

// Address reports the address the server listens on.
func (s *Server) Address() string {
	if s == nil {
		return ""
	}
	return s.cfg.Address
}

func (s *Server) buildRouter() (*gin.Engine, error) {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.Default())
	if err := router.SetTrustedProxies(nil); err != nil {
		return nil, err
	}

	router.GET("/healthz", func(c *gin.Context) {
		state := s.feed.State()
		code := http.StatusOK
		if state != feed.StateConnected {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"state":     state.String(),
			"connected": state == feed.StateConnected,
		})
	})

	router.GET("/api/feed", func(c *gin.Context) {
		messages, bytes := logger.ChannelStats("feed_text")
		c.JSON(http.StatusOK, gin.H{
			"state":    s.feed.State().String(),
			"symbols":  s.feed.Symbols(),
			"counters": logger.Counters(),
			"text_frames": gin.H{
				"messages": messages,
				"bytes":    bytes,
			},
		})
	})

	router.GET("/api/logs", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"logs": s.logStore.snapshot()})
	})

	router.GET("/api/resources", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"resources": s.sampler.snapshot()})
	})

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))

	return router, nil
}

func normalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)

	if addr == "" {
		return "0.0.0.0:8080"
	}

	if strings.Contains(addr, "://") {
		if parsed, err := url.Parse(addr); err == nil {
			if host := parsed.Host; host != "" {
				addr = host
			} else if parsed.Opaque != "" {
				addr = parsed.Opaque
			}
		}
	}

	if strings.HasPrefix(addr, ":") && len(addr) > 1 && addr[1] >= '0' && addr[1] <= '9' {
		return "0.0.0.0" + addr
	}

	if host, port, err := net.SplitHostPort(addr); err == nil {
		if host == "" || host == "*" {
			host = "0.0.0.0"
		}
		if port == "" {
			port = "8080"
		}
		return net.JoinHostPort(host, port)
	}

	if ip := net.ParseIP(addr); ip != nil || !strings.Contains(addr, ":") {
		return net.JoinHostPort(addr, "8080")
	}
	return addr
}
