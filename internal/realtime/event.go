package realtime

import (
	"encoding/json"
	"fmt"
)

// Outbound event names.
const (
	EventBookingCreated         = "booking:created"
	EventBookingCancelled       = "booking:cancelled"
	EventNewOrder               = "new_order"
	EventOrderUpdate            = "order_update"
	EventTableUpdate            = "table_update"
	EventTableFreed             = "table_freed"
	EventTableServiceUpdate     = "table_service_update"
	EventTableBillUpdate        = "table_bill_update"
	EventStaffUpdate            = "staff_update"
	EventMenuStockUpdate        = "menu_stock_update"
	EventRestaurantStatusUpdate = "restaurant_status_update"
	EventReviewAdded            = "review_added"

	eventJoined = "joined"
	eventError  = "error"
)

// Inbound event names.
const (
	JoinPublicRoom = "join_public_room"
	JoinStaffRoom  = "join_staff_room"
	JoinOwnerRoom  = "join_owner_room"
	JoinTableRoom  = "join_table_room"
)

func PublicRoom(restaurantID uint) string {
	return fmt.Sprintf("restaurant:%d:public", restaurantID)
}

func StaffRoom(restaurantID uint) string {
	return fmt.Sprintf("restaurant:%d:staff", restaurantID)
}

func OwnerRoom(restaurantID uint) string {
	return fmt.Sprintf("restaurant:%d:owner", restaurantID)
}

func TableRoom(restaurantID, tableID uint) string {
	return fmt.Sprintf("restaurant:%d:table:%d", restaurantID, tableID)
}

// Event is a state change produced by a mutation. Payload is the full
// snapshot of the affected entity.
type Event struct {
	Name         string
	RestaurantID uint
	Rooms        []string
	Payload      interface{}
}

// Envelope is an encoded event. It is the unit shipped through the redis
// relay and the kafka export, so it carries its own routing.
type Envelope struct {
	Event        string          `json:"event"`
	RestaurantID uint            `json:"restaurantId"`
	Rooms        []string        `json:"rooms"`
	Data         json.RawMessage `json:"data"`
}

// Encode marshals the payload once for every consumer.
func (e Event) Encode() (Envelope, error) {
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", e.Name, err)
	}
	return Envelope{Event: e.Name, RestaurantID: e.RestaurantID, Rooms: e.Rooms, Data: data}, nil
}

// frame is what a websocket client receives.
type frame struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// Frame returns the client-facing encoding of the envelope.
func (env Envelope) Frame() ([]byte, error) {
	return json.Marshal(frame{Event: env.Event, Data: env.Data})
}

func controlFrame(event string, data interface{}) []byte {
	b, _ := json.Marshal(frame{Event: event, Data: data})
	return b
}
