package stream

import (
	"context"
	"sync"
	"time"
)

// Event types pushed over the live deal feed.
const (
	TypeUserRegistered    = "user.registered"
	TypeUserVerified      = "user.verified"
	TypeContractCreated   = "contract.created"
	TypeContractActivated = "contract.activated"
	TypeContractCompleted = "contract.completed"
	TypeContractAmended   = "contract.amended"
	TypeMilestonesDefined = "milestones.defined"
	TypeMilestoneSubmit   = "milestone.submitted"
	TypeMilestonePaid     = "milestone.paid"
	TypeMilestoneRejected = "milestone.rejected"
	TypeDisputeOpened     = "dispute.opened"
	TypeDisputeVote       = "dispute.vote.cast"
	TypeDisputeResolved   = "dispute.resolved"
	TypeTokenMinted       = "token.minted"
	TypeTokenTransferred  = "token.transferred"
	TypeRoyaltyRecorded   = "token.royalty.recorded"
)

// DealEvent is one item on the live deal feed (SSE clients, dashboards).
type DealEvent struct {
	Type       string    `json:"type"`
	ContractID uint64    `json:"contract_id,omitempty"`
	DisputeID  uint64    `json:"dispute_id,omitempty"`
	TokenID    uint64    `json:"token_id,omitempty"`
	Actor      string    `json:"actor,omitempty"`
	Subject    string    `json:"subject,omitempty"`
	Asset      string    `json:"asset,omitempty"`
	Amount     int64     `json:"amount,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Stream fan-outs deal events to all active subscribers (SSE clients).
type Stream struct {
	mu   sync.RWMutex
	subs map[int]chan DealEvent
	next int
}

// New initialises an empty stream.
func New() *Stream {
	return &Stream{subs: make(map[int]chan DealEvent)}
}

// Subscribe registers a subscriber and returns a channel which will receive
// events. The channel is closed when the provided context ends.
func (s *Stream) Subscribe(ctx context.Context) <-chan DealEvent {
	ch := make(chan DealEvent, 16)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// Publish fan-outs the event to all subscribers. Missing timestamps are
// stamped here so callers can publish bare events.
func (s *Stream) Publish(evt DealEvent) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- evt:
		default:
			// Drop when subscriber is slow to avoid blocking.
		}
	}
}

// StartDemo publishes events produced by next at the provided interval until
// the returned stop function is called. Demo mode feeds dashboards without
// real traffic.
func (s *Stream) StartDemo(interval time.Duration, next func() DealEvent) func() {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Publish(next())
			}
		}
	}()
	return cancel
}
