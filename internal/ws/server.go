package ws

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
)

// Server exposes a hub to tabs living in other processes.
type Server struct {
	hub      *Hub
	log      *slog.Logger
	upgrader *websocket.Upgrader
}

func NewServer(hub *Hub, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		hub: hub,
		log: log,
		upgrader: &websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

func (s *Server) HandleConnections(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("error upgrading to websocket", "error", err)
		return
	}

	tab := s.hub.Open()
	s.log.Info("remote tab attached", "tab_id", tab.ID(), "remote_addr", r.RemoteAddr)

	if err := NewConnection(tab, ws, s.log).Handle(r.Context()); err != nil {
		s.log.Debug("remote tab closed", "tab_id", tab.ID(), "error", err)
	}
}
