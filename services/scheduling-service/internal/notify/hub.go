package notify

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/fureverhome/pawbook/services/scheduling-service/internal/apperr"
	"github.com/fureverhome/pawbook/services/scheduling-service/internal/events"
	"github.com/fureverhome/pawbook/services/scheduling-service/internal/metrics"
	"github.com/fureverhome/pawbook/services/scheduling-service/internal/model"
)

const sendBuffer = 64

// Message is the frame written to subscribers.
type Message struct {
	Type     string        `json:"type"`
	Event    *events.Event `json:"event,omitempty"`
	Action   string        `json:"action,omitempty"`
	Channels []string      `json:"channels,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// Hub tracks which subscriptions listen on which channel.
type Hub struct {
	mu       sync.RWMutex
	channels map[string]map[*Subscription]struct{}
	all      map[*Subscription]struct{}
	metrics  *metrics.Metrics
}

func NewHub(m *metrics.Metrics) *Hub {
	return &Hub{
		channels: map[string]map[*Subscription]struct{}{},
		all:      map[*Subscription]struct{}{},
		metrics:  m,
	}
}

// Subscription is one connection's view of the hub. It starts joined to the
// actor's own channels and can Join or Leave others it is allowed to see.
type Subscription struct {
	ID    string
	actor model.Actor
	hub   *Hub
	send  chan []byte
	// joined is guarded by hub.mu.
	joined map[string]struct{}
}

// Subscribe registers a subscription for actor.
func (h *Hub) Subscribe(actor model.Actor) *Subscription {
	s := &Subscription{
		ID:     uuid.NewString(),
		actor:  actor,
		hub:    h,
		send:   make(chan []byte, sendBuffer),
		joined: map[string]struct{}{},
	}
	h.mu.Lock()
	h.all[s] = struct{}{}
	h.join(s, ownChannels(actor))
	h.mu.Unlock()
	h.metrics.WebsocketConnected()
	return s
}

func ownChannels(actor model.Actor) []string {
	chans := []string{events.RequesterChannel(actor.ID)}
	if actor.IsProfessional() {
		chans = append(chans, events.ProfessionalChannel(actor.ID))
	}
	return chans
}

func (h *Hub) join(s *Subscription, channels []string) {
	for _, ch := range channels {
		if h.channels[ch] == nil {
			h.channels[ch] = map[*Subscription]struct{}{}
		}
		h.channels[ch][s] = struct{}{}
		s.joined[ch] = struct{}{}
	}
}

// Close removes s from every channel and closes its send queue.
func (s *Subscription) Close() {
	h := s.hub
	h.mu.Lock()
	if _, ok := h.all[s]; !ok {
		h.mu.Unlock()
		return
	}
	for ch := range s.joined {
		h.remove(ch, s)
	}
	delete(h.all, s)
	close(s.send)
	h.mu.Unlock()
	h.metrics.WebsocketDisconnected()
}

func (h *Hub) remove(ch string, s *Subscription) {
	subs := h.channels[ch]
	delete(subs, s)
	if len(subs) == 0 {
		delete(h.channels, ch)
	}
	delete(s.joined, ch)
}

// Join adds channels after checking the actor may see every one of them.
func (s *Subscription) Join(channels ...string) error {
	for _, ch := range channels {
		if err := CanJoin(s.actor, ch); err != nil {
			return err
		}
	}
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	if _, ok := s.hub.all[s]; !ok {
		return nil
	}
	s.hub.join(s, channels)
	return nil
}

func (s *Subscription) Leave(channels ...string) {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	for _, ch := range channels {
		if _, ok := s.joined[ch]; ok {
			s.hub.remove(ch, s)
		}
	}
}

func (s *Subscription) Channels() []string {
	s.hub.mu.RLock()
	defer s.hub.mu.RUnlock()
	out := make([]string, 0, len(s.joined))
	for ch := range s.joined {
		out = append(out, ch)
	}
	sort.Strings(out)
	return out
}

// Messages yields encoded frames; it is closed by Close.
func (s *Subscription) Messages() <-chan []byte { return s.send }

// reply queues a control frame for this subscription only.
func (s *Subscription) reply(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	s.hub.mu.RLock()
	defer s.hub.mu.RUnlock()
	if _, ok := s.hub.all[s]; !ok {
		return
	}
	select {
	case s.send <- data:
	default:
	}
}

// CanJoin allows professionals their own calendar channel and anyone their
// own requester channel.
func CanJoin(actor model.Actor, channel string) error {
	kind, id, ok := strings.Cut(channel, ":")
	if !ok || id == "" {
		return apperr.Invalid("channel", "unknown channel "+channel)
	}
	switch kind {
	case "professional":
		if actor.Owns(id) {
			return nil
		}
	case "requester":
		if actor.ID == id {
			return nil
		}
	default:
		return apperr.Invalid("channel", "unknown channel "+channel)
	}
	return apperr.Forbidden("join "+channel, "channel belongs to someone else")
}

// Deliver sends evt to each subscription on any of its channels, at most
// once per subscription. Slow subscribers miss the event.
func (h *Hub) Deliver(_ context.Context, evt events.Event) error {
	data, err := json.Marshal(Message{Type: "event", Event: &evt})
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	seen := map[*Subscription]struct{}{}
	for _, ch := range evt.Channels() {
		for s := range h.channels[ch] {
			if _, dup := seen[s]; dup {
				continue
			}
			seen[s] = struct{}{}
			select {
			case s.send <- data:
			default:
				h.metrics.ObserveEventDropped()
			}
		}
	}
	return nil
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

func (h *Hub) ChannelCount(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channel])
}
