package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/go-chi/jwtauth/v5"
	"github.com/gorilla/websocket"
	"github.com/labforge/equipment-mgmt/internal/pkg/presentation/api/auth"
	"github.com/labforge/equipment-mgmt/pkg/types"
)

const (
	// writeTimeout is the deadline for a single write to a client.
	writeTimeout = 10 * time.Second

	// pongWait is how long to wait for a pong response before treating the
	// connection as dead.
	pongWait = 60 * time.Second

	// pingPeriod controls how often the server sends ping frames. Must be
	// less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// sendBufSize is the per-client outgoing message buffer depth.
	sendBufSize = 16

	maxMessageSize = 512
)

const TopicGlobal = "global"

func UserTopic(userID string) string           { return "user:" + userID }
func RoleTopic(role types.Role) string         { return "role:" + string(role) }
func EquipmentTopic(equipmentID string) string { return "equipment:" + equipmentID }

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Allow all origins, CORS is applied at the reverse-proxy level.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Envelope is the JSON frame sent to clients and received from them.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// AccessChecker answers whether an actor may observe a given equipment. The
// hub consults it before honouring a subscribe request; anything that is not
// a definite yes means no.
type AccessChecker interface {
	CanAccessEquipment(ctx context.Context, actor types.Actor, equipmentID string) bool
}

// Hub routes published events to connected clients by topic. Every client is
// a member of its own user topic, its role topic and the global topic for as
// long as it is connected; equipment topics are joined and left on request.
type Hub struct {
	tokenAuth *jwtauth.JWTAuth
	access    AccessChecker

	mu     sync.RWMutex
	topics map[string]map[*session]struct{}
}

type session struct {
	conn  *websocket.Conn
	actor types.Actor

	// send is never closed: publishers may hold a member snapshot from before
	// the session was unregistered, and a send on a closed channel panics even
	// inside a select with a default case. Shutdown is signalled on done.
	send chan []byte
	done chan struct{}

	// joined is guarded by the hub mutex, not a session one, so that
	// membership and the topic registry always change together.
	joined map[string]struct{}
}

func New(tokenAuth *jwtauth.JWTAuth, access AccessChecker) *Hub {
	return &Hub{
		tokenAuth: tokenAuth,
		access:    access,
		topics:    make(map[string]map[*session]struct{}),
	}
}

// Run blocks until ctx is cancelled, then closes all active connections.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// ServeHTTP authenticates the handshake, upgrades the connection and serves
// the client until it disconnects. Unauthenticated requests are rejected
// before any upgrade happens.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := logging.GetFromContext(r.Context())

	actor, err := h.authenticate(r)
	if err != nil {
		log.Info("realtime handshake rejected", "err", err.Error())
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response.
		return
	}

	s := &session{
		conn:   conn,
		actor:  actor,
		send:   make(chan []byte, sendBufSize),
		done:   make(chan struct{}),
		joined: make(map[string]struct{}),
	}

	h.join(s, UserTopic(actor.ID))
	h.join(s, RoleTopic(actor.Role))
	h.join(s, TopicGlobal)

	defer h.unregister(s)

	go s.writePump()
	h.readPump(r.Context(), s)
}

// Publish sends one event to every current member of the topic. The payload
// is marshalled once, up front, so every recipient sees the same snapshot no
// matter when its write completes. Delivery is at most once: a client whose
// buffer is full is disconnected rather than waited for.
func (h *Hub) Publish(ctx context.Context, topic string, event string, data any) {
	frame, err := marshalEnvelope(event, data)
	if err != nil {
		logging.GetFromContext(ctx).Error("unable to marshal event", "event", event, "err", err.Error())
		return
	}

	h.mu.RLock()
	targets := make([]*session, 0, len(h.topics[topic]))
	for s := range h.topics[topic] {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	for _, s := range targets {
		select {
		case s.send <- frame:
		default:
			h.unregister(s)
		}
	}
}

// Broadcast publishes to the global topic that every client is a member of.
func (h *Hub) Broadcast(ctx context.Context, event string, data any) {
	h.Publish(ctx, TopicGlobal, event, data)
}

func (h *Hub) PublishToEquipment(ctx context.Context, equipmentID string, event string, data any) {
	h.Publish(ctx, EquipmentTopic(equipmentID), event, data)
}

func (h *Hub) PublishToRole(ctx context.Context, role types.Role, event string, data any) {
	h.Publish(ctx, RoleTopic(role), event, data)
}

func (h *Hub) PublishToUser(ctx context.Context, userID string, event string, data any) {
	h.Publish(ctx, UserTopic(userID), event, data)
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[TopicGlobal])
}

func (h *Hub) authenticate(r *http.Request) (types.Actor, error) {
	tokenString := r.URL.Query().Get("token")
	if tokenString == "" {
		tokenString = jwtauth.TokenFromHeader(r)
	}

	token, err := jwtauth.VerifyToken(h.tokenAuth, tokenString)
	if err != nil {
		return types.Actor{}, err
	}

	return auth.ActorFromToken(token)
}

func (h *Hub) join(s *session, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, gone := s.joined[goneMarker]; gone {
		return
	}

	members, ok := h.topics[topic]
	if !ok {
		members = make(map[*session]struct{})
		h.topics[topic] = members
	}

	members[s] = struct{}{}
	s.joined[topic] = struct{}{}
}

func (h *Hub) leave(s *session, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(s, topic)
}

// goneMarker flags a fully unregistered session so that a racing join cannot
// resurrect it in the registry.
const goneMarker = "\x00gone"

func (h *Hub) unregister(s *session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, gone := s.joined[goneMarker]; gone {
		return
	}

	for topic := range s.joined {
		h.leaveLocked(s, topic)
	}

	s.joined[goneMarker] = struct{}{}
	close(s.done)
}

func (h *Hub) leaveLocked(s *session, topic string) {
	members, ok := h.topics[topic]
	if !ok {
		return
	}

	delete(members, s)
	delete(s.joined, topic)

	if len(members) == 0 {
		delete(h.topics, topic)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()

	closed := make(map[*session]struct{})
	for _, members := range h.topics {
		for s := range members {
			if _, done := closed[s]; done {
				continue
			}
			closed[s] = struct{}{}
			s.joined[goneMarker] = struct{}{}
			close(s.done)
		}
	}
	h.topics = make(map[string]map[*session]struct{})

	h.mu.Unlock()
}

type subscribeRequest struct {
	EquipmentID string `json:"equipmentID"`
}

// readPump processes inbound frames: subscription control messages, pongs and
// disconnects. Blocks until the connection closes.
func (h *Hub) readPump(ctx context.Context, s *session) {
	defer s.conn.Close()

	log := logging.GetFromContext(ctx)

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, frame, err := s.conn.ReadMessage()
		if err != nil {
			return
		}

		var env Envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			continue
		}

		var req subscribeRequest
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &req); err != nil {
				continue
			}
		}

		switch env.Event {
		case types.EventSubscribeEquipment:
			if req.EquipmentID == "" {
				continue
			}
			if !h.access.CanAccessEquipment(ctx, s.actor, req.EquipmentID) {
				log.Info("equipment subscription denied", "actor", s.actor.ID, "equipment", req.EquipmentID)
				continue
			}
			h.join(s, EquipmentTopic(req.EquipmentID))
		case types.EventUnsubscribeEquipment:
			if req.EquipmentID == "" {
				continue
			}
			h.leave(s, EquipmentTopic(req.EquipmentID))
		}
	}
}

// writePump drains the session's send channel and forwards frames to the
// connection, interleaved with periodic pings. Runs in its own goroutine per
// client.
func (s *session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case frame := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-s.done:
			s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			s.conn.WriteMessage(websocket.CloseMessage, []byte{}) //nolint:errcheck
			return

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func marshalEnvelope(event string, data any) ([]byte, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return json.Marshal(Envelope{Event: event, Data: payload})
}
