package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"nexus/internal/nexusdb"
	"nexus/internal/ws"
)

// BridgeServer exposes an origin to tabs in other processes and serves
// read-only transcripts of the origin's signed in account.
type BridgeServer struct {
	server *http.Server
	log    *slog.Logger
	wg     sync.WaitGroup
}

func NewBridgeServer(hub *ws.Hub, store *nexusdb.Store, log *slog.Logger, addr string) *BridgeServer {
	if log == nil {
		log = slog.Default()
	}

	server := ws.NewServer(hub, log)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/tab", server.HandleConnections)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("GET /transcripts/{id}", NewTranscriptHandler(store))

	if addr == "" {
		addr = "localhost:8090"
	}

	return &BridgeServer{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
		log: log,
	}
}

func (s *BridgeServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *BridgeServer) Start() error {
	s.log.Info("tab bridge started", "addr", s.server.Addr)
	s.wg.Add(1)
	defer s.wg.Done()

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *BridgeServer) Shutdown(ctx context.Context) error {
	defer s.wg.Wait()
	return s.server.Shutdown(ctx)
}
