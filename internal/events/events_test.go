package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/fitness-class-booking/internal/model"
)

func TestNewBookingEvent_Payload(t *testing.T) {
	start := time.Date(2026, 10, 17, 3, 30, 0, 0, time.UTC)
	class := model.NewFitnessClass("c1", model.CategoryHIIT, "Anjali Verma", start, 12, 11)
	b := model.Booking{
		ID:          "b1",
		ClassID:     "c1",
		ClientName:  "Jane Doe",
		ClientEmail: "jane@x.com",
		Class:       &class,
	}

	e := NewBookingEvent(TypeBookingConfirmed, b, start.Add(-time.Hour))
	body, err := e.Marshal()
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, "booking.confirmed", got["type"])
	assert.Equal(t, "HIIT", got["category"])
	assert.Equal(t, float64(11), got["available_slots"])
	assert.Equal(t, "2026-10-17T03:30:00Z", got["starts_at"])
}

func TestNewBookingEvent_WithoutClass(t *testing.T) {
	e := NewBookingEvent(TypeBookingCancelled, model.Booking{ID: "b1", ClassID: "c1"}, time.Now())
	assert.Equal(t, "c1", e.ClassID)
	assert.Empty(t, e.Category)
}

func TestNoop(t *testing.T) {
	var p Publisher = Noop{}
	assert.NoError(t, p.Publish(context.Background(), BookingEvent{}))
	assert.NoError(t, p.Close())
}

func TestNewKafkaPublisher_Validation(t *testing.T) {
	_, err := NewKafkaPublisher(nil, "topic", zap.NewNop())
	assert.Error(t, err)

	_, err = NewKafkaPublisher([]string{"localhost:9092"}, "", zap.NewNop())
	assert.Error(t, err)

	p, err := NewKafkaPublisher([]string{"localhost:9092"}, "booking-events", zap.NewNop())
	require.NoError(t, err)
	assert.NoError(t, p.Close())
}
