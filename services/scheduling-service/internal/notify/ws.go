package notify

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fureverhome/pawbook/services/scheduling-service/internal/model"
)

// ClientMessage is what dashboards send to change their channels.
type ClientMessage struct {
	Action   string   `json:"action"`
	Channels []string `json:"channels"`
}

// Conn is the part of *websocket.Conn the pumps use.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

type WSConfig struct {
	AllowedOrigins []string
	PingEvery      time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64
}

type WSServer struct {
	hub      *Hub
	logger   *slog.Logger
	cfg      WSConfig
	upgrader websocket.Upgrader
}

func NewWSServer(hub *Hub, logger *slog.Logger, cfg WSConfig) *WSServer {
	if cfg.PongWait <= 0 {
		cfg.PongWait = 60 * time.Second
	}
	if cfg.PingEvery <= 0 || cfg.PingEvery >= cfg.PongWait {
		cfg.PingEvery = cfg.PongWait * 9 / 10
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = 10 * time.Second
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 4096
	}
	s := &WSServer{hub: hub, logger: logger, cfg: cfg}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

func (s *WSServer) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) || strings.EqualFold(allowed, u.Host) {
			return true
		}
	}
	return false
}

// Handle upgrades the request and serves the connection for actor until it
// closes. The caller has already authenticated actor.
func (s *WSServer) Handle(w http.ResponseWriter, r *http.Request, actor model.Actor) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "err", err)
		return
	}
	ws.SetReadLimit(s.cfg.MaxMessageSize)
	s.Serve(ws, actor)
}

// Serve runs the pumps for an established connection and blocks until the
// read side ends.
func (s *WSServer) Serve(conn Conn, actor model.Actor) {
	sub := s.hub.Subscribe(actor)
	s.logger.Info("websocket connected", "subscription_id", sub.ID, "actor_id", actor.ID)
	sub.reply(Message{Type: "joined", Channels: sub.Channels()})

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.writePump(conn, sub)
	}()
	s.readPump(conn, sub)
	sub.Close()
	<-done
	s.logger.Info("websocket disconnected", "subscription_id", sub.ID)
}

func (s *WSServer) readPump(conn Conn, sub *Subscription) {
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			sub.reply(Message{Type: "error", Error: "malformed message"})
			continue
		}
		s.handle(sub, msg)
	}
}

func (s *WSServer) handle(sub *Subscription, msg ClientMessage) {
	switch msg.Action {
	case "join":
		if err := sub.Join(msg.Channels...); err != nil {
			sub.reply(Message{Type: "error", Action: msg.Action, Channels: msg.Channels, Error: err.Error()})
			return
		}
	case "leave":
		sub.Leave(msg.Channels...)
	default:
		sub.reply(Message{Type: "error", Action: msg.Action, Error: "unknown action"})
		return
	}
	sub.reply(Message{Type: "ack", Action: msg.Action, Channels: sub.Channels()})
}

func (s *WSServer) writePump(conn Conn, sub *Subscription) {
	ticker := time.NewTicker(s.cfg.PingEvery)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case data, ok := <-sub.Messages():
			_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
