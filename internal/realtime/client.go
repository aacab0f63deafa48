package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"maitred/internal/apperr"
	"maitred/internal/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 4 * 1024
	authorizeWait  = 5 * time.Second
)

type presence struct {
	restaurantID uint
	userID       uint
}

// Client is one websocket connection. rooms and presence are guarded by the
// hub's lock.
type Client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	user *models.User
	send chan []byte

	rooms    map[string]struct{}
	presence []presence

	closeOnce sync.Once
}

func newClient(h *Hub, conn *websocket.Conn, user *models.User) *Client {
	return &Client{
		id:    uuid.NewString(),
		hub:   h,
		conn:  conn,
		user:  user,
		send:  make(chan []byte, h.clientBuffer),
		rooms: make(map[string]struct{}),
	}
}

func (c *Client) ID() string { return c.id }

func (c *Client) close() {
	c.closeOnce.Do(func() { c.conn.Close() })
}

// readPump reads join requests until the connection fails, then drops the
// client from the hub.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Debug("websocket read error", "client", c.id, "error", err)
			}
			return
		}
		c.handleMessage(message)
	}
}

// writePump pumps frames from the send buffer to the connection and keeps
// it alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

type inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func (c *Client) handleMessage(message []byte) {
	var msg inbound
	if err := json.Unmarshal(message, &msg); err != nil {
		c.reply(eventError, errorBody("", apperr.Validation("malformed message")))
		return
	}

	join, err := parseJoin(msg.Data)
	if err != nil {
		c.reply(eventError, errorBody(msg.Event, err))
		return
	}

	room, err := c.authorize(msg.Event, join)
	if err != nil {
		c.hub.logger.Debug("join rejected", "client", c.id, "event", msg.Event, "error", err)
		c.reply(eventError, errorBody(msg.Event, err))
		return
	}

	if msg.Event == JoinStaffRoom {
		c.hub.joinStaff(c, join.restaurant(), join.UserID.value())
	} else {
		c.hub.join(c, room)
	}
	c.reply(eventJoined, map[string]string{"room": room})
}

// authorize resolves the room for a join request, checking authority for
// the staff and owner rooms.
func (c *Client) authorize(event string, join joinPayload) (string, error) {
	restaurantID := join.restaurant()
	if restaurantID == 0 {
		return "", apperr.Validation("restaurantId is required")
	}

	switch event {
	case JoinPublicRoom:
		return PublicRoom(restaurantID), nil
	case JoinTableRoom:
		if join.TableID == 0 {
			return "", apperr.Validation("tableId is required")
		}
		return TableRoom(restaurantID, join.TableID.value()), nil
	case JoinStaffRoom, JoinOwnerRoom:
	default:
		return "", apperr.Validation("unknown event %q", event)
	}

	if c.user == nil {
		return "", apperr.Unauthenticated("authentication required")
	}
	if c.hub.authorizer == nil {
		return "", apperr.Authorization("room is not available")
	}

	ctx, cancel := context.WithTimeout(context.Background(), authorizeWait)
	defer cancel()

	if event == JoinStaffRoom {
		if err := c.hub.authorizer.AuthorizeStaffJoin(ctx, c.user, restaurantID, join.UserID.value()); err != nil {
			return "", err
		}
		return StaffRoom(restaurantID), nil
	}
	if err := c.hub.authorizer.AuthorizeOwnerJoin(ctx, c.user, restaurantID); err != nil {
		return "", err
	}
	return OwnerRoom(restaurantID), nil
}

// reply queues a control frame for this client only.
func (c *Client) reply(event string, data interface{}) {
	select {
	case c.send <- controlFrame(event, data):
	default:
		c.hub.recorder.EventDropped("client")
	}
}

func errorBody(event string, err error) map[string]string {
	message := "internal error"
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		message = appErr.Message
	}
	return map[string]string{"event": event, "message": message}
}

// flexID accepts ids sent as numbers or numeric strings.
type flexID uint

func (id *flexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = 0
		return nil
	}
	s := string(bytes.Trim(b, `"`))
	if s == "" {
		*id = 0
		return nil
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid id %s", b)
	}
	*id = flexID(n)
	return nil
}

func (id flexID) value() uint { return uint(id) }

type joinPayload struct {
	RestaurantID flexID `json:"restaurantId"`
	RestroID     flexID `json:"restroId"`
	UserID       flexID `json:"userId"`
	TableID      flexID `json:"tableId"`
}

func (j joinPayload) restaurant() uint {
	if j.RestaurantID != 0 {
		return j.RestaurantID.value()
	}
	return j.RestroID.value()
}

// parseJoin accepts either a bare restaurant id or an object payload.
func parseJoin(data json.RawMessage) (joinPayload, error) {
	var join joinPayload
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return join, apperr.Validation("join payload is required")
	}
	if trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &join); err != nil {
			return join, apperr.Validation("malformed join payload")
		}
		return join, nil
	}
	if err := json.Unmarshal(trimmed, &join.RestaurantID); err != nil {
		return join, apperr.Validation("malformed join payload")
	}
	return join, nil
}
