package realtime

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"sync"

	"maitred/internal/models"

	"github.com/gorilla/websocket"
)

// Recorder receives fanout counters. monitoring.Monitor implements it.
type Recorder interface {
	EventDelivered(event string)
	EventDropped(stage string)
	ConnectionOpened()
	ConnectionClosed()
}

type nopRecorder struct{}

func (nopRecorder) EventDelivered(string) {}
func (nopRecorder) EventDropped(string)   {}
func (nopRecorder) ConnectionOpened()     {}
func (nopRecorder) ConnectionClosed()     {}

// Authorizer decides the protected room joins.
type Authorizer interface {
	AuthorizeStaffJoin(ctx context.Context, user *models.User, restaurantID, userID uint) error
	AuthorizeOwnerJoin(ctx context.Context, user *models.User, restaurantID uint) error
}

type HubOptions struct {
	Authorizer   Authorizer
	Recorder     Recorder
	Logger       *slog.Logger
	ClientBuffer int
	CheckOrigin  func(r *http.Request) bool
}

// Hub is the in-memory room index. Membership lives only as long as the
// connection; nothing here is persisted.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	rooms   map[string]map[*Client]struct{}
	// staff presence: restaurant -> user -> open connections
	staff map[uint]map[uint]int

	authorizer   Authorizer
	recorder     Recorder
	logger       *slog.Logger
	clientBuffer int
	upgrader     websocket.Upgrader
}

func NewHub(opts HubOptions) *Hub {
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(nopWriter{}, nil))
	}
	if opts.ClientBuffer <= 0 {
		opts.ClientBuffer = 256
	}
	checkOrigin := opts.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(r *http.Request) bool { return true }
	}

	return &Hub{
		clients:      make(map[*Client]struct{}),
		rooms:        make(map[string]map[*Client]struct{}),
		staff:        make(map[uint]map[uint]int),
		authorizer:   opts.Authorizer,
		recorder:     opts.Recorder,
		logger:       opts.Logger.With("component", "hub"),
		clientBuffer: opts.ClientBuffer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
	}
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

// Serve upgrades the request and starts the client's pumps. user is nil for
// anonymous connections, which may still join public and table rooms.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, user *models.User) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	client := newClient(h, conn, user)
	h.register(client)

	go client.writePump()
	go client.readPump()
	return nil
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	h.recorder.ConnectionOpened()
	h.logger.Debug("client connected", "client", c.id)
}

// unregister drops every membership of c and closes its send channel.
func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	for room := range c.rooms {
		members := h.rooms[room]
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	for _, p := range c.presence {
		h.dropPresence(p.restaurantID, p.userID)
	}
	c.rooms = nil
	c.presence = nil
	close(c.send)
	h.mu.Unlock()

	h.recorder.ConnectionClosed()
	h.logger.Debug("client disconnected", "client", c.id)
}

func (h *Hub) dropPresence(restaurantID, userID uint) {
	users := h.staff[restaurantID]
	users[userID]--
	if users[userID] <= 0 {
		delete(users, userID)
	}
	if len(users) == 0 {
		delete(h.staff, restaurantID)
	}
}

func (h *Hub) join(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.joinLocked(c, room)
}

func (h *Hub) joinLocked(c *Client, room string) bool {
	if _, ok := h.clients[c]; !ok {
		return false
	}
	if _, ok := c.rooms[room]; ok {
		return false
	}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
	c.rooms[room] = struct{}{}
	return true
}

func (h *Hub) joinStaff(c *Client, restaurantID, userID uint) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.joinLocked(c, StaffRoom(restaurantID)) {
		return
	}
	users, ok := h.staff[restaurantID]
	if !ok {
		users = make(map[uint]int)
		h.staff[restaurantID] = users
	}
	users[userID]++
	c.presence = append(c.presence, presence{restaurantID: restaurantID, userID: userID})
}

// Deliver sends the envelope to every client in any of its rooms. A client
// in several target rooms receives it once. Returns the number of clients
// the frame was queued for.
func (h *Hub) Deliver(env Envelope) int {
	payload, err := env.Frame()
	if err != nil {
		h.logger.Debug("failed to encode frame", "event", env.Event, "error", err)
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	seen := make(map[*Client]struct{})
	delivered := 0
	for _, room := range env.Rooms {
		for c := range h.rooms[room] {
			if _, dup := seen[c]; dup {
				continue
			}
			seen[c] = struct{}{}

			select {
			case c.send <- payload:
				delivered++
				h.recorder.EventDelivered(env.Event)
			default:
				h.recorder.EventDropped("client")
				h.logger.Debug("client buffer full, dropping frame", "client", c.id, "event", env.Event)
			}
		}
	}
	return delivered
}

// OnlineStaff lists the staff user ids connected to the restaurant's staff
// room, ascending.
func (h *Hub) OnlineStaff(restaurantID uint) []uint {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := make([]uint, 0, len(h.staff[restaurantID]))
	for id := range h.staff[restaurantID] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// RoomSize returns the number of clients in room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// ClientCount returns the number of registered connections.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.close()
	}
}
