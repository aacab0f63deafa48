package eventlog

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"maitred/internal/realtime"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestKafkaExporterEmit(t *testing.T) {
	writer := &fakeWriter{}
	exporter := NewKafkaExporter(writer)

	env, err := realtime.Event{
		Name:         realtime.EventOrderUpdate,
		RestaurantID: 12,
		Rooms:        []string{realtime.StaffRoom(12)},
		Payload:      map[string]interface{}{"id": 3, "status": "SERVED"},
	}.Encode()
	require.NoError(t, err)

	require.NoError(t, exporter.Emit(context.Background(), env))
	require.Len(t, writer.messages, 1)

	msg := writer.messages[0]
	assert.Equal(t, "12", string(msg.Key))
	assert.Equal(t, "event", msg.Headers[0].Key)
	assert.Equal(t, realtime.EventOrderUpdate, string(msg.Headers[0].Value))

	var decoded realtime.Envelope
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, realtime.EventOrderUpdate, decoded.Event)
	assert.JSONEq(t, `{"id":3,"status":"SERVED"}`, string(decoded.Data))

	require.NoError(t, exporter.Close())
	assert.True(t, writer.closed)
}

func TestKafkaExporterPropagatesWriterError(t *testing.T) {
	exporter := NewKafkaExporter(&fakeWriter{err: errors.New("broker down")})
	err := exporter.Emit(context.Background(), realtime.Envelope{Event: realtime.EventNewOrder})
	assert.EqualError(t, err, "broker down")
}

func TestNewKafkaWriter(t *testing.T) {
	w := NewKafkaWriter([]string{"localhost:9092"}, "restaurant-events")
	assert.Equal(t, "restaurant-events", w.Topic)
	assert.True(t, w.Async)
}
