package models

import (
	"encoding/json"
	"fmt"
)

// EventType names a push-channel message.
type EventType string

const (
	EventQueued   EventType = "queued"
	EventProgress EventType = "progress"
	EventStatus   EventType = "status_update"
	EventDone     EventType = "done"
	EventError    EventType = "error"
	// EventRejected answers a bad client message on one connection only.
	// It is not part of the job's stream and never ends it.
	EventRejected EventType = "rejected"
)

// Event is one message on a job's push channel. Only the fields that
// belong to Type are serialized.
type Event struct {
	Type     EventType
	Job      string
	Position int    // queued
	MS       int64  // progress
	Status   string // status_update
	Download string // done
	TTL      int    // done, seconds
	Telegram bool   // done
	Message  string // error, rejected
}

// IsTerminal reports whether the event ends the job's stream.
func (e Event) IsTerminal() bool {
	return e.Type == EventDone || e.Type == EventError
}

func QueuedEvent(job string, position int) Event {
	return Event{Type: EventQueued, Job: job, Position: position}
}

func ProgressEvent(job string, ms int64) Event {
	return Event{Type: EventProgress, Job: job, MS: ms}
}

func StatusEvent(job, status string) Event {
	return Event{Type: EventStatus, Job: job, Status: status}
}

func DoneEvent(job, download string, ttl int, telegram bool) Event {
	return Event{Type: EventDone, Job: job, Download: download, TTL: ttl, Telegram: telegram}
}

func ErrorEvent(job, message string) Event {
	return Event{Type: EventError, Job: job, Message: message}
}

func RejectedEvent(job, message string) Event {
	return Event{Type: EventRejected, Job: job, Message: message}
}

// MarshalJSON writes the flat wire shape, e.g. {"type":"progress","job":"…","ms":1500}.
func (e Event) MarshalJSON() ([]byte, error) {
	m := map[string]interface{}{
		"type": e.Type,
		"job":  e.Job,
	}
	switch e.Type {
	case EventQueued:
		m["position"] = e.Position
	case EventProgress:
		m["ms"] = e.MS
	case EventStatus:
		m["status"] = e.Status
	case EventDone:
		m["download"] = e.Download
		m["ttl"] = e.TTL
		m["telegram"] = e.Telegram
	case EventError, EventRejected:
		m["message"] = e.Message
	default:
		return nil, fmt.Errorf("unknown event type %q", e.Type)
	}
	return json.Marshal(m)
}

// UnmarshalJSON accepts the flat wire shape.
func (e *Event) UnmarshalJSON(data []byte) error {
	var wire struct {
		Type     EventType `json:"type"`
		Job      string    `json:"job"`
		Position int       `json:"position"`
		MS       int64     `json:"ms"`
		Status   string    `json:"status"`
		Download string    `json:"download"`
		TTL      int       `json:"ttl"`
		Telegram bool      `json:"telegram"`
		Message  string    `json:"message"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*e = Event{
		Type:     wire.Type,
		Job:      wire.Job,
		Position: wire.Position,
		MS:       wire.MS,
		Status:   wire.Status,
		Download: wire.Download,
		TTL:      wire.TTL,
		Telegram: wire.Telegram,
		Message:  wire.Message,
	}
	return nil
}

// ClientMessage is what a client may send on the push channel.
type ClientMessage struct {
	Type    string      `json:"type"` // "start_conversion"
	Options ClipOptions `json:"options"`
}
