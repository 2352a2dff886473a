package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"nexus/internal/metrics"
)

type MetricsServer struct {
	server *http.Server
	log    *slog.Logger
	wg     sync.WaitGroup
}

func NewMetricsServer(m *metrics.Metrics, log *slog.Logger, addr string) *MetricsServer {
	if log == nil {
		log = slog.Default()
	}
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", m.Handler())

	if addr == "" {
		addr = "localhost:9090"
	}

	return &MetricsServer{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
		log: log,
	}
}

func (s *MetricsServer) Start() error {
	s.log.Info("metrics server started", "addr", s.server.Addr)
	s.wg.Add(1)
	defer s.wg.Done()

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *MetricsServer) Shutdown(ctx context.Context) error {
	defer s.wg.Wait()
	return s.server.Shutdown(ctx)
}
