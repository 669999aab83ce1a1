// Package bus is the single write path for channel messages: validate,
// durably append, then fan out to every live subscriber.
package bus

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agenthall/agenthall/backend/internal/model/message"
	"github.com/agenthall/agenthall/backend/internal/store/messagelog"
)

var ErrValidation = errors.New("invalid message")

// subscriberBuffer is how far a subscriber may lag before it is dropped.
const subscriberBuffer = 64

// DefaultHistoryLimit bounds the snapshot a fresh subscriber receives.
const DefaultHistoryLimit = 50

type subscriber struct {
	id      string
	channel string
	ch      chan message.Message
}

// Subscription is one live realtime consumer. History holds the snapshot
// taken at connect time; C then delivers every later append on the channel,
// in append order, until Cancel is called or the bus drops the subscriber
// for lagging. C is closed on either.
type Subscription struct {
	ID      string
	History []message.Message
	C       <-chan message.Message
	cancel  func()
}

// Cancel detaches the subscription. Safe to call more than once.
func (s *Subscription) Cancel() {
	s.cancel()
}

// Service persists and rebroadcasts channel messages. The same mutex guards
// the append+broadcast sequence and the history-snapshot+register sequence,
// so a subscriber connecting concurrently with a send sees that message
// exactly once, in its history or as its first event but never both.
type Service struct {
	store        *messagelog.Store
	historyLimit int

	mu     sync.Mutex
	subs   map[string]*subscriber
	closed bool
}

// NewService wires the bus to its durable log.
func NewService(store *messagelog.Store, historyLimit int) *Service {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &Service{
		store:        store,
		historyLimit: historyLimit,
		subs:         make(map[string]*subscriber),
	}
}

// Send validates, appends, and broadcasts one message. The returned message
// carries the store-assigned id and timestamp. Broadcast happens strictly
// after a successful append; a failed append reaches no subscriber.
func (s *Service) Send(ctx context.Context, sender string, senderType message.SenderType, content, channel string) (message.Message, error) {
	if sender == "" || content == "" {
		return message.Message{}, fmt.Errorf("%w: sender and content are required", ErrValidation)
	}
	if !senderType.Valid() {
		return message.Message{}, fmt.Errorf("%w: senderType must be %q or %q", ErrValidation, message.SenderAgent, message.SenderHuman)
	}
	if channel == "" {
		channel = message.DefaultChannel
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	msg, err := s.store.Append(ctx, sender, senderType, content, channel)
	if err != nil {
		return message.Message{}, err
	}

	for id, sub := range s.subs {
		if sub.channel != msg.Channel {
			continue
		}
		select {
		case sub.ch <- msg:
		default:
			// A full buffer means the consumer stopped draining.
			// Availability over completeness: drop it rather than
			// let it backpressure the sender and its peers.
			log.Printf("[bus] subscriber %s lagging, dropping", id)
			delete(s.subs, id)
			close(sub.ch)
		}
	}
	return msg, nil
}

// Subscribe registers a realtime consumer on the channel and returns its
// history snapshot together with the live feed.
func (s *Service) Subscribe(ctx context.Context, channel string) (*Subscription, error) {
	if channel == "" {
		channel = message.DefaultChannel
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, errors.New("bus closed")
	}

	history, err := s.store.Latest(ctx, s.historyLimit, channel)
	if err != nil {
		return nil, err
	}

	sub := &subscriber{
		id:      uuid.NewString(),
		channel: channel,
		ch:      make(chan message.Message, subscriberBuffer),
	}
	s.subs[sub.id] = sub

	return &Subscription{
		ID:      sub.id,
		History: history,
		C:       sub.ch,
		cancel:  func() { s.unsubscribe(sub.id) },
	}, nil
}

func (s *Service) unsubscribe(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub, ok := s.subs[id]; ok {
		delete(s.subs, id)
		close(sub.ch)
	}
}

// Close drops every subscriber with a clean channel close. Further sends
// still persist; further subscriptions are refused.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for id, sub := range s.subs {
		delete(s.subs, id)
		close(sub.ch)
	}
}

// Latest exposes the log's bounded read for the HTTP and tool surfaces.
func (s *Service) Latest(ctx context.Context, limit int, channel string) ([]message.Message, error) {
	return s.store.Latest(ctx, limit, channel)
}

// Since exposes the log's incremental read.
func (s *Service) Since(ctx context.Context, ts time.Time, channel string) ([]message.Message, error) {
	return s.store.Since(ctx, ts, channel)
}

// GetByID exposes single-message lookup.
func (s *Service) GetByID(ctx context.Context, id int64) (message.Message, error) {
	return s.store.GetByID(ctx, id)
}
