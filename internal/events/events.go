// Package events records domain events emitted by the ledgers.
// Consumers treat the stream as an audit log, never as control input.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/R3E-Network/course_marketplace/pkg/logger"
)

// Type classifies a domain event.
type Type string

const (
	// Course token registry
	TypeTokenMint          Type = "token.minted"
	TypeTokenLent          Type = "token.lent"
	TypeTokenReturned      Type = "token.returned"
	TypeTokenBroken        Type = "token.broken"
	TypeTokenRepaired      Type = "token.repaired"
	TypeTokenTransferred   Type = "token.transferred"
	TypeTokenBurned        Type = "token.burned"
	TypeTeacherPaid        Type = "teacher.paid"
	TypePriceUpdated       Type = "price.updated"
	TypeSupplyLimitUpdated Type = "supply_limit.updated"

	// Factory
	TypeCourseDeployed Type = "course.deployed"
	TypeTeacherAdded   Type = "teacher.added"

	// Marketplace
	TypeListingCreated   Type = "listing.created"
	TypeListingUpdated   Type = "listing.updated"
	TypeListingDeleted   Type = "listing.deleted"
	TypeListingPurchased Type = "listing.purchased"

	// Talent match
	TypeTalentMatchAdded     Type = "talent_match.added"
	TypeTalentMatchUpdated   Type = "talent_match.updated"
	TypeTalentMatchDeleted   Type = "talent_match.deleted"
	TypeTalentMatchConfirmed Type = "talent_match.confirmed"
	TypeShareSchemeUpdated   Type = "share_scheme.updated"

	// Staking
	TypeStakedToken   Type = "stake.deposited"
	TypeWithdrawToken Type = "stake.withdrawn"

	// Airdrop
	TypeAirdropSent Type = "airdrop.sent"
)

// Event is one recorded domain occurrence.
type Event struct {
	ID        string         `json:"id"`
	Type      Type           `json:"type"`
	Source    string         `json:"source,omitempty"` // collection or ledger id
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// New builds an event with a fresh id and UTC timestamp.
func New(t Type, source string, payload map[string]any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      t,
		Source:    source,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// Sink receives emitted events. Emit is fire-and-forget; failures are the
// sink's problem, never the emitter's.
type Sink interface {
	Emit(Event)
}

// Discard drops every event.
var Discard Sink = discard{}

type discard struct{}

func (discard) Emit(Event) {}

// Recorder retains emitted events in order, for tests and audit replay.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder { return &Recorder{} }

// Emit appends the event.
func (r *Recorder) Emit(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfType returns recorded events of the given type, in order.
func (r *Recorder) OfType(t Type) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// Reset discards everything recorded so far.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// LogSink writes every event to the structured log.
type LogSink struct {
	log *logger.Logger
}

// NewLogSink creates a sink logging through log.
func NewLogSink(log *logger.Logger) *LogSink { return &LogSink{log: log} }

// Emit logs the event at Info.
func (s *LogSink) Emit(e Event) {
	s.log.WithField("event", string(e.Type)).
		WithField("source", e.Source).
		WithField("payload", e.Payload).
		Info("domain event")
}

// Fanout forwards each event to every sink in order.
func Fanout(sinks ...Sink) Sink { return fanout(sinks) }

type fanout []Sink

func (f fanout) Emit(e Event) {
	for _, s := range f {
		s.Emit(e)
	}
}
