// Package events defines the domain events emitted after song request mutations
// and the publishers that carry them to event rooms.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/musudik/dropmybeat-api/internal/models"
)

// Name identifies a domain event.
type Name string

const (
	SongRequestCreated  Name = "songRequestCreated"
	SongRequestUpdated  Name = "songRequestUpdated"
	SongRequestDeleted  Name = "songRequestDeleted"
	SongRequestLiked    Name = "songRequestLiked"
	SongRequestApproved Name = "songRequestApproved"
	SongRequestRejected Name = "songRequestRejected"
	SongRequestPlayed   Name = "songRequestPlayed"
	SongRequestSkipped  Name = "songRequestSkipped"
)

// IsValid returns true if n is a known event name.
func (n Name) IsValid() bool {
	switch n {
	case SongRequestCreated, SongRequestUpdated, SongRequestDeleted, SongRequestLiked,
		SongRequestApproved, SongRequestRejected, SongRequestPlayed, SongRequestSkipped:
		return true
	default:
		return false
	}
}

// Payload is the body of every domain event.
type Payload struct {
	SongRequest *models.SongRequest `json:"songRequest"`
	EventID     string              `json:"eventId"`
}

// Event is one notification for an event room.
type Event struct {
	Type    Name    `json:"type"`
	Payload Payload `json:"payload"`
}

// New builds an event for the room of r's event.
func New(name Name, r *models.SongRequest) Event {
	return Event{
		Type: name,
		Payload: Payload{
			SongRequest: r,
			EventID:     r.EventID,
		},
	}
}

// Room returns the event-room identifier the notification belongs to.
func (e Event) Room() string {
	return e.Payload.EventID
}

// Encode serializes the event in its wire form.
func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Decode parses an event from its wire form.
func Decode(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, fmt.Errorf("decoding event: %w", err)
	}
	if !e.Type.IsValid() || e.Payload.EventID == "" {
		return Event{}, fmt.Errorf("decoding event: unknown type %q or missing room", e.Type)
	}
	return e, nil
}

// Publisher delivers domain events downstream. Delivery to connected clients is the publisher's concern.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Discard is a Publisher that drops every event.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(context.Context, Event) error { return nil }

// Recorder is a Publisher that keeps every event it receives.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Publish records e.
func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Names returns the names of the recorded events in order.
func (r *Recorder) Names() []Name {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]Name, len(r.events))
	for i, e := range r.events {
		names[i] = e.Type
	}
	return names
}

// Reset drops the recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
