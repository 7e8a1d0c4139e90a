package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory CallStore with the same transactional
// semantics as the Firestore implementation. Used by tests and local
// development.
type MemoryStore struct {
	mu          sync.Mutex
	calls       map[string]*Call        // key: scope/id
	messages    map[string][]Message    // key: scope/id
	memberships map[string]*Membership  // key: scope/userID
	subs        map[string][]*memorySub // key: scope/id
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		calls:       make(map[string]*Call),
		messages:    make(map[string][]Message),
		memberships: make(map[string]*Membership),
		subs:        make(map[string][]*memorySub),
	}
}

func key(scope, id string) string { return scope + "/" + id }

// SetMembership seeds a scope membership record.
func (s *MemoryStore) SetMembership(scope string, m Membership) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.memberships[key(scope, m.UserID)] = &m
}

func (s *MemoryStore) CreateCall(ctx context.Context, call *Call) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *call
	clone.Participants = append([]Participant(nil), call.Participants...)
	s.calls[key(call.Scope, call.ID)] = &clone
	return nil
}

func (s *MemoryStore) GetCall(ctx context.Context, scope, id string) (*Call, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(scope, id)
}

func (s *MemoryStore) getLocked(scope, id string) (*Call, error) {
	call, ok := s.calls[key(scope, id)]
	if !ok {
		return nil, ErrCallNotFound
	}
	clone := *call
	clone.Participants = append([]Participant(nil), call.Participants...)
	clone.Documents = append([]FileRef(nil), call.Documents...)
	return &clone, nil
}

func (s *MemoryStore) AddParticipant(ctx context.Context, scope, id string, p Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	call, ok := s.calls[key(scope, id)]
	if !ok {
		return ErrCallNotFound
	}
	if call.HasParticipant(p.UserID) {
		return nil
	}
	call.Participants = append(call.Participants, p)
	return nil
}

func (s *MemoryStore) RemoveParticipant(ctx context.Context, scope, id, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	call, ok := s.calls[key(scope, id)]
	if !ok {
		return ErrCallNotFound
	}
	remaining := call.Participants[:0]
	for _, p := range call.Participants {
		if p.UserID != userID {
			remaining = append(remaining, p)
		}
	}
	call.Participants = remaining
	return nil
}

func (s *MemoryStore) CompleteCall(ctx context.Context, scope, id string, endedAt time.Time, recordingURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	call, ok := s.calls[key(scope, id)]
	if !ok {
		return ErrCallNotFound
	}
	if call.Status == StatusCompleted {
		return nil
	}
	call.Status = StatusCompleted
	call.EndedAt = &endedAt
	if recordingURL != "" {
		call.RecordingURL = recordingURL
	}
	return nil
}

func (s *MemoryStore) AppendDocument(ctx context.Context, scope, id string, ref FileRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	call, ok := s.calls[key(scope, id)]
	if !ok {
		return ErrCallNotFound
	}
	call.Documents = append(call.Documents, ref)
	return nil
}

func (s *MemoryStore) AppendMessage(ctx context.Context, scope, id string, msg *Message) error {
	s.mu.Lock()
	k := key(scope, id)
	s.messages[k] = append(s.messages[k], *msg)
	subs := append([]*memorySub(nil), s.subs[k]...)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.notify()
	}
	return nil
}

func (s *MemoryStore) Messages(ctx context.Context, scope, id string, limit int) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pageLocked(scope, id, limit), nil
}

func (s *MemoryStore) pageLocked(scope, id string, limit int) []Message {
	if limit <= 0 {
		limit = DefaultMessagePage
	}
	msgs := append([]Message(nil), s.messages[key(scope, id)]...)
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].Timestamp.After(msgs[j].Timestamp) })
	if len(msgs) > limit {
		msgs = msgs[:limit]
	}
	return msgs
}

type memorySub struct {
	store  *MemoryStore
	scope  string
	id     string
	limit  int
	fn     func([]Message)
	cancel sync.Once
	dead   bool
	mu     sync.Mutex
}

func (m *memorySub) notify() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dead {
		return
	}
	m.store.mu.Lock()
	page := m.store.pageLocked(m.scope, m.id, m.limit)
	m.store.mu.Unlock()
	m.fn(page)
}

func (m *memorySub) Cancel() {
	m.cancel.Do(func() {
		m.mu.Lock()
		m.dead = true
		m.mu.Unlock()
	})
}

func (s *MemoryStore) SubscribeMessages(ctx context.Context, scope, id string, limit int, fn func([]Message)) (Subscription, error) {
	sub := &memorySub{store: s, scope: scope, id: id, limit: limit, fn: fn}

	s.mu.Lock()
	s.subs[key(scope, id)] = append(s.subs[key(scope, id)], sub)
	s.mu.Unlock()

	// Initial snapshot, matching the Firestore listener behaviour.
	sub.notify()
	return sub, nil
}

func (s *MemoryStore) Membership(ctx context.Context, scope, userID string) (*Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.memberships[key(scope, userID)]
	if !ok {
		return nil, nil
	}
	clone := *m
	return &clone, nil
}
