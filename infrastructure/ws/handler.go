package ws

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"darkroom/auth"
	"darkroom/domain"
	apperrors "darkroom/errors"
	"darkroom/runtime"
)

// Handler upgrades HTTP requests to WebSocket connections and runs each
// connection's read loop. It authenticates the guest token before the
// upgrade, so an invalid token never costs a socket.
type Handler struct {
	log          *slog.Logger
	registry     *runtime.Registry
	conns        *runtime.Connections
	router       *runtime.Router
	history      *runtime.History
	janitor      *runtime.Janitor
	secret       []byte
	historyLimit int
	readLimit    int64
	upgrader     websocket.Upgrader

	mu      sync.Mutex
	clients map[string]*Client
}

func NewHandler(log *slog.Logger, registry *runtime.Registry, conns *runtime.Connections,
	router *runtime.Router, history *runtime.History, janitor *runtime.Janitor,
	secret []byte, historyLimit int, readLimit int64, allowedOrigins []string) *Handler {
	return &Handler{
		log:          log,
		registry:     registry,
		conns:        conns,
		router:       router,
		history:      history,
		janitor:      janitor,
		secret:       secret,
		historyLimit: historyLimit,
		readLimit:    readLimit,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		clients: make(map[string]*Client),
	}
}

// originChecker allows every origin when the allow list is empty,
// otherwise only listed ones.
func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		_, ok := set[r.Header.Get("Origin")]
		return ok
	}
}

// ServeHTTP is the socket endpoint. The guest token comes from the
// "token" query parameter or the Authorization header.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = r.Header.Get("Authorization")
	}
	claims, err := auth.ValidateToken(h.secret, token)
	if err != nil {
		h.log.Info("Rejected socket without valid token", "remote", r.RemoteAddr)
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("Upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	conn.SetReadLimit(h.readLimit)

	connID := uuid.NewString()
	client := newClient(h.log, connID, claims.Alias, conn)

	h.mu.Lock()
	h.clients[connID] = client
	h.mu.Unlock()
	h.conns.Register(connID, claims.Alias, client)

	h.log.Info("Connection opened", "conn", connID, "alias", claims.Alias)
	go client.writePump()
	h.readLoop(r.Context(), client)
}

// CloseConn force-closes the socket of a connection, typically on behalf
// of the janitor's idle sweep. Unknown ids are ignored.
func (h *Handler) CloseConn(connID string) {
	h.mu.Lock()
	client, ok := h.clients[connID]
	h.mu.Unlock()
	if ok {
		client.close()
	}
}

// readLoop consumes client frames until the socket dies, then runs the
// disconnect cascade.
func (h *Handler) readLoop(ctx context.Context, client *Client) {
	defer func() {
		h.mu.Lock()
		delete(h.clients, client.id)
		h.mu.Unlock()
		h.janitor.HandleDisconnect(ctx, client.id)
		client.close()
		h.log.Info("Connection closed", "conn", client.id)
	}()

	_ = client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Debug("Read failed", "conn", client.id, "error", err)
			}
			return
		}
		h.conns.Touch(client.id)
		h.dispatch(ctx, client, raw)
	}
}

// dispatch routes one validated envelope to the matching operation. All
// rejections go back to the sender as error frames; they never close the
// connection.
func (h *Handler) dispatch(ctx context.Context, client *Client, raw []byte) {
	env, err := domain.ParseEnvelope(raw)
	if err != nil {
		h.log.Debug("Discarding malformed frame", "conn", client.id, "error", err)
		_ = client.enqueue(errorEvent("", "malformed_frame"))
		return
	}

	roomID := domain.RoomID(env.Room)
	switch env.Op {
	case domain.OpJoin:
		h.handleJoin(ctx, client, roomID, env.Passcode)
	case domain.OpLeave:
		h.handleLeave(ctx, client, roomID)
	case domain.OpSend:
		h.handleSend(ctx, client, roomID, env.Body)
	}
}

// handleJoin adds the connection to the room, replies with recent history
// and notifies the other members. Joining a room twice just refreshes the
// history snapshot.
func (h *Handler) handleJoin(ctx context.Context, client *Client, roomID domain.RoomID, passcode string) {
	if meta, ok := h.registry.Metadata(roomID); ok && meta.PasscodeHash != "" {
		match, err := auth.ComparePasscode(passcode, meta.PasscodeHash)
		if err != nil || !match {
			_ = client.enqueue(errorEvent(roomID, apperrors.ReasonCode(apperrors.ErrBadPasscode)))
			return
		}
	}

	count, err := h.conns.JoinRoom(client.id, roomID)
	if err != nil {
		_ = client.enqueue(errorEvent(roomID, apperrors.ReasonCode(err)))
		return
	}

	messages := h.history.LoadRecent(ctx, roomID, h.historyLimit)
	_ = client.enqueue(historyEvent(roomID, messages, count))
	h.router.AnnouncePresence(ctx, roomID)
}

// handleLeave drops the membership and acknowledges with the room's new
// member count. Leaving a room the client never joined is a no-op ack.
func (h *Handler) handleLeave(ctx context.Context, client *Client, roomID domain.RoomID) {
	count := h.conns.LeaveRoom(client.id, roomID)
	_ = client.enqueue(presenceEvent(roomID, count))
	h.router.AnnouncePresence(ctx, roomID)
}

func (h *Handler) handleSend(ctx context.Context, client *Client, roomID domain.RoomID, body string) {
	if _, err := h.router.Publish(ctx, roomID, client.id, body); err != nil {
		_ = client.enqueue(errorEvent(roomID, apperrors.ReasonCode(err)))
	}
}
