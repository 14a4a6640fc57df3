package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/zhouzirui/improv-battle/backend/internal/service/credential"
	"github.com/zhouzirui/improv-battle/backend/internal/service/relay"
	"github.com/zhouzirui/improv-battle/backend/internal/transport"
	"github.com/zhouzirui/improv-battle/backend/pkg/utils"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = 54 * time.Second
	maxFrameSize = 64 << 10
)

var (
	errPublishDenied = errors.New("token does not allow publishing")
	errAgentOnly     = errors.New("only the host agent may publish this event")
	errClientGone    = errors.New("client disconnected")
	errStreamEnded   = errors.New("room subscription ended")
)

// TokenVerifier validates participant tokens.
type TokenVerifier interface {
	Verify(token string) (*credential.Claims, error)
}

// Handler relays room events between the participants holding tokens for that room.
type Handler struct {
	bus      relay.Bus
	verifier TokenVerifier
	upgrader websocket.Upgrader
	now      func() time.Time
}

// New 创建房间事件中继处理器
func New(bus relay.Bus, verifier TokenVerifier) *Handler {
	return &Handler{
		bus:      bus,
		verifier: verifier,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		now: time.Now,
	}
}

// RegisterRoutes 注册房间事件路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/rooms/{roomName}/events", h.handleWebSocket)
	r.Get("/rooms/{roomName}/events/stream", h.handleStream)
}

type errorFrame struct {
	Type      string `json:"type"`
	Error     string `json:"error"`
	Timestamp int64  `json:"timestamp"`
}

// authenticate resolves the token from the Authorization header or the
// access_token query parameter and checks it grants the room.
func (h *Handler) authenticate(r *http.Request, room string) (*credential.Claims, int, error) {
	token := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
	if token == "" {
		token = strings.TrimSpace(r.URL.Query().Get("access_token"))
	}
	if token == "" {
		return nil, http.StatusUnauthorized, errors.New("missing access token")
	}

	claims, err := h.verifier.Verify(token)
	if err != nil {
		if errors.Is(err, credential.ErrNotConfigured) {
			return nil, http.StatusInternalServerError, err
		}
		return nil, http.StatusUnauthorized, err
	}
	if !claims.CanJoin(room) {
		return nil, http.StatusForbidden, errors.Errorf("token does not grant room %s", room)
	}
	return claims, http.StatusOK, nil
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	room := chi.URLParam(r, "roomName")
	if room == "" {
		utils.RespondError(w, http.StatusBadRequest, "roomName is required")
		return
	}

	claims, status, err := h.authenticate(r, room)
	if err != nil {
		log.Warn().Err(err).Str("component", "relay").Str("room", room).Msg("rejected connection")
		utils.RespondError(w, status, err.Error())
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Subscribe before the upgrade so nothing published after the handshake is missed.
	var events <-chan transport.Event
	if claims.CanSubscribe() {
		events, err = h.bus.Subscribe(ctx, room)
		if err != nil {
			log.Error().Err(err).Str("component", "relay").Str("room", room).Msg("subscribe failed")
			utils.RespondError(w, http.StatusInternalServerError, "subscribe failed")
			return
		}
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("component", "relay").Msg("upgrade failed")
		return
	}

	logger := log.With().
		Str("component", "relay").
		Str("room", room).
		Str("identity", claims.Identity()).
		Bool("agent", claims.IsAgent()).
		Logger()
	logger.Info().Msg("participant connected")

	out := &socketWriter{conn: conn}
	g, gctx := errgroup.WithContext(ctx)

	// The reader blocks in ReadMessage; closing the socket is what releases it.
	go func() {
		<-gctx.Done()
		_ = conn.Close()
	}()

	g.Go(func() error { return h.readLoop(gctx, conn, out, room, claims, logger) })
	g.Go(func() error { return h.writeLoop(gctx, out, events) })

	err = g.Wait()
	logger.Info().Err(err).Msg("participant disconnected")
}

func (h *Handler) readLoop(ctx context.Context, conn *websocket.Conn, out *socketWriter, room string, claims *credential.Claims, logger zerolog.Logger) error {
	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn().Err(err).Msg("read error")
			}
			return errClientGone
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		var ev transport.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			out.sendError(h.now(), "invalid event payload")
			continue
		}

		if err := h.admit(&ev, room, claims); err != nil {
			out.sendError(h.now(), err.Error())
			continue
		}

		if err := h.bus.Publish(ctx, room, ev); err != nil {
			logger.Error().Err(err).Str("type", string(ev.Type)).Msg("publish failed")
			out.sendError(h.now(), "publish failed")
		}
	}
}

func (h *Handler) writeLoop(ctx context.Context, out *socketWriter, events <-chan transport.Event) error {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return errStreamEnded
			}
			if err := out.writeJSON(ev); err != nil {
				return errors.Wrap(err, "write event")
			}
		case <-ticker.C:
			if err := out.ping(); err != nil {
				return errors.Wrap(err, "ping")
			}
		}
	}
}

// admit checks a client-sent event against the sender's grant and stamps the
// fields the relay owns: room, timestamp and speaker attribution.
func (h *Handler) admit(ev *transport.Event, room string, claims *credential.Claims) error {
	if !claims.CanPublish() {
		return errPublishDenied
	}
	if err := ev.Validate(); err != nil {
		return err
	}

	self := &transport.Participant{Identity: claims.Identity(), Name: claims.Name, IsAgent: claims.IsAgent()}

	switch ev.Type {
	case transport.EventAgentState:
		if !claims.IsAgent() {
			return errAgentOnly
		}
		ev.Participant = self
		ev.Segments = nil
	case transport.EventAgentTranscription:
		if !claims.IsAgent() {
			return errAgentOnly
		}
		ev.Participant = self
	case transport.EventTranscription:
		// The host transcribes players and may attribute speech to them; a
		// player can only speak as itself.
		if claims.IsAgent() && ev.Participant != nil && ev.Participant.Identity != "" && ev.Participant.Identity != claims.Identity() {
			ev.Participant = &transport.Participant{Identity: ev.Participant.Identity, Name: ev.Participant.Name}
		} else {
			ev.Participant = self
		}
	}

	ev.Room = room
	ev.Timestamp = h.now().UnixMilli()
	return nil
}

// socketWriter serializes writes; gorilla allows one concurrent writer.
type socketWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *socketWriter) writeJSON(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(v)
}

func (s *socketWriter) ping() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (s *socketWriter) sendError(now time.Time, message string) {
	if err := s.writeJSON(errorFrame{Type: "error", Error: message, Timestamp: now.UnixMilli()}); err != nil {
		log.Debug().Err(err).Str("component", "relay").Msg("write error frame failed")
	}
}
