package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rajivgeraev/barter-api/internal/utils"
)

// Server принимает WebSocket-подключения и регистрирует их в Manager
type Server struct {
	manager    *Manager
	jwtService *utils.JWTService
	upgrader   websocket.Upgrader
	httpServer *http.Server
}

// NewServer создает сервер realtime-канала
func NewServer(manager *Manager, jwtService *utils.JWTService) *Server {
	return &Server{
		manager:    manager,
		jwtService: jwtService,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Mini App открывается с домена Telegram, проверка origin выполняется токеном
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handler возвращает HTTP-обработчик с маршрутами /ws и /health
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.serveWS)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return mux
}

// ListenAndServe запускает сервер и блокируется до его остановки
func (s *Server) ListenAndServe(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Infof("✅ Realtime сервер запущен на %s", addr)
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown останавливает сервер и закрывает все соединения
func (s *Server) Shutdown(ctx context.Context) error {
	s.manager.Shutdown()
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}

	claims, err := s.jwtService.ExtractClaims(token)
	if err != nil {
		http.Error(w, "invalid or expired token", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("WebSocket upgrade failed: %v", err)
		return
	}

	client := NewClient(claims.UserID, conn, s.manager)
	client.Start()

	hello, _ := json.Marshal(Event{Type: EventConnected, UserID: claims.UserID, Timestamp: time.Now().UTC()})
	client.enqueue(hello)
}
