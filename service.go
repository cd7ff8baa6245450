package goSession

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/MrEthical07/goSession/internal"
	"github.com/MrEthical07/goSession/keys"
	"github.com/MrEthical07/goSession/session"
)

// SessionEventType classifies a session-state change delivered to subscribers.
type SessionEventType string

const (
	// EventSessionCreated is an exported constant or variable used by the session engine.
	EventSessionCreated SessionEventType = "created"
	// EventSessionUpdated is an exported constant or variable used by the session engine.
	EventSessionUpdated SessionEventType = "updated"
	// EventSessionRemoved is an exported constant or variable used by the session engine.
	EventSessionRemoved SessionEventType = "removed"
	// EventSessionActivated is an exported constant or variable used by the session engine.
	EventSessionActivated SessionEventType = "activated"
	// EventSessionsCleared is an exported constant or variable used by the session engine.
	EventSessionsCleared SessionEventType = "cleared"
)

// SessionEvent is a single session-state change. Entry is a clone and safe to
// retain; it is nil for removed/cleared events and for activation of "".
type SessionEvent struct {
	Type      SessionEventType
	SessionID string
	Entry     *Session
}

// sessionService owns the in-memory mirror of the session registry plus the
// active pointer, keeps both synchronized with the store, and fans state
// changes out to subscribers. All mutations go through the store first; the
// mirror only ever reflects acknowledged writes.
type sessionService struct {
	store *session.Store
	keys  *keys.Manager
	cfg   SessionConfig

	mu      sync.RWMutex
	mirror  map[string]*session.Entry
	order   []string
	active  string
	subs    map[uint64]func(SessionEvent)
	nextSub uint64

	stopChanges func()
}

func newSessionService(store *session.Store, km *keys.Manager, cfg SessionConfig) *sessionService {
	return &sessionService{
		store:  store,
		keys:   km,
		cfg:    cfg,
		mirror: make(map[string]*session.Entry),
		subs:   make(map[uint64]func(SessionEvent)),
	}
}

// start hydrates the mirror from the store and subscribes to cross-instance
// change notifications.
func (s *sessionService) start(ctx context.Context) error {
	entries, err := s.store.GetAll(ctx)
	if err != nil {
		return err
	}
	active, err := s.store.GetActive(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	for _, e := range entries {
		s.mirror[e.ID] = e
		s.order = append(s.order, e.ID)
	}
	if _, ok := s.mirror[active]; ok {
		s.active = active
	}
	s.mu.Unlock()

	stop, err := s.store.Changes(context.Background(), s.onChange)
	if err != nil {
		return err
	}
	s.stopChanges = stop
	return nil
}

func (s *sessionService) stop() {
	if s.stopChanges != nil {
		s.stopChanges()
	}
}

// onChange applies a registry or active-pointer write made by another
// instance. The payload carries the new value, so no store round trip is
// needed.
func (s *sessionService) onChange(c session.Change) {
	switch c.Key {
	case s.store.RegistryKey():
		var entries []*session.Entry
		if err := json.Unmarshal([]byte(c.Value), &entries); err != nil {
			log.Printf("goSession: ignoring corrupt registry notification: %v", err)
			return
		}
		s.applyRegistry(entries)
	case s.store.ActiveKey():
		s.applyActive(c.Value)
	}
}

func (s *sessionService) applyRegistry(entries []*session.Entry) {
	next := make(map[string]*session.Entry, len(entries))
	order := make([]string, 0, len(entries))
	for _, e := range entries {
		next[e.ID] = e
		order = append(order, e.ID)
	}

	s.mu.Lock()
	var events []SessionEvent
	for id := range s.mirror {
		if _, ok := next[id]; !ok {
			events = append(events, SessionEvent{Type: EventSessionRemoved, SessionID: id})
		}
	}
	for id, e := range next {
		prev, ok := s.mirror[id]
		if !ok {
			events = append(events, SessionEvent{Type: EventSessionCreated, SessionID: id, Entry: e.Clone()})
		} else if !prev.Equal(e) {
			events = append(events, SessionEvent{Type: EventSessionUpdated, SessionID: id, Entry: e.Clone()})
		}
	}
	s.mirror = next
	s.order = order
	if _, ok := next[s.active]; !ok {
		s.active = ""
	}
	s.mu.Unlock()

	for _, ev := range events {
		s.notify(ev)
	}
}

func (s *sessionService) applyActive(id string) {
	s.mu.Lock()
	if id != "" {
		if _, ok := s.mirror[id]; !ok {
			s.mu.Unlock()
			return
		}
	}
	changed := s.active != id
	s.active = id
	s.mu.Unlock()

	if changed {
		s.notify(SessionEvent{Type: EventSessionActivated, SessionID: id, Entry: s.get(id)})
	}
}

// create mints a fresh session identity: a new id, a key pair persisted in
// the key-blob store, and an anonymous registry entry. The entry is not
// activated.
func (s *sessionService) create(ctx context.Context, extractable bool) (*session.Entry, error) {
	sid, err := internal.NewSessionID()
	if err != nil {
		return nil, fmt.Errorf("generate session id: %w", err)
	}
	id := sid.String()

	if _, err := s.keys.Create(ctx, id, extractable); err != nil {
		return nil, fmt.Errorf("create session keys: %w", err)
	}

	expireAt := time.Now().Add(s.cfg.Lifetime).UTC()
	entry := &session.Entry{ID: id, ExpireAt: &expireAt}

	if err := s.store.Insert(ctx, entry); err != nil {
		// Roll the orphaned key pair back so the blob store stays consistent.
		if derr := s.keys.Delete(ctx, id); derr != nil {
			log.Printf("goSession: orphaned key blob for session %s: %v", id, derr)
		}
		return nil, err
	}

	s.mu.Lock()
	s.mirror[id] = entry
	s.order = append(s.order, id)
	s.mu.Unlock()

	s.notify(SessionEvent{Type: EventSessionCreated, SessionID: id, Entry: entry.Clone()})
	return entry.Clone(), nil
}

// bind attaches a hydrated user and expiry to an existing session entry and
// garbage-collects the registry: every other entry that is still anonymous,
// or that is bound to the same user, is removed. Entries bound to a different
// authenticated user are preserved. Returns the bound entry and the ids of
// the removed entries.
func (s *sessionService) bind(ctx context.Context, sessionID string, user *session.User, expireAt *time.Time) (*session.Entry, []string, error) {
	s.mu.RLock()
	current, ok := s.mirror[sessionID]
	var dups []string
	if user != nil {
		for _, id := range s.order {
			e := s.mirror[id]
			if id != sessionID && (e.User == nil || e.User.ID == user.ID) {
				dups = append(dups, id)
			}
		}
	}
	s.mu.RUnlock()

	if !ok {
		return nil, nil, ErrSessionNotFound
	}

	entry := current.Clone()
	entry.User = user
	if expireAt != nil {
		entry.ExpireAt = expireAt
	}

	for _, id := range dups {
		if err := s.remove(ctx, id); err != nil {
			return nil, nil, fmt.Errorf("remove duplicate session %s: %w", id, err)
		}
	}

	if err := s.store.Upsert(ctx, entry); err != nil {
		return nil, nil, err
	}

	s.mu.Lock()
	s.mirror[sessionID] = entry
	s.mu.Unlock()

	s.notify(SessionEvent{Type: EventSessionUpdated, SessionID: sessionID, Entry: entry.Clone()})
	return entry.Clone(), dups, nil
}

// touch extends the entry's expiry after a successful refresh.
func (s *sessionService) touch(ctx context.Context, sessionID string) {
	s.mu.RLock()
	current, ok := s.mirror[sessionID]
	s.mu.RUnlock()
	if !ok {
		return
	}

	entry := current.Clone()
	expireAt := time.Now().Add(s.cfg.Lifetime).UTC()
	entry.ExpireAt = &expireAt

	if err := s.store.Update(ctx, entry); err != nil {
		log.Printf("goSession: extend session %s lifetime: %v", sessionID, err)
		return
	}

	s.mu.Lock()
	s.mirror[sessionID] = entry
	s.mu.Unlock()
}

// activate sets the active-session pointer. The session must exist.
func (s *sessionService) activate(ctx context.Context, sessionID string) error {
	s.mu.RLock()
	_, ok := s.mirror[sessionID]
	s.mu.RUnlock()
	if !ok {
		return ErrSessionNotFound
	}

	if err := s.store.SetActive(ctx, sessionID); err != nil {
		return err
	}

	s.mu.Lock()
	s.active = sessionID
	entry := s.mirror[sessionID].Clone()
	s.mu.Unlock()

	s.notify(SessionEvent{Type: EventSessionActivated, SessionID: sessionID, Entry: entry})
	return nil
}

// remove deletes one session: registry entry and key blob together. When the
// removed session was active, another remaining session (if any) becomes
// active.
func (s *sessionService) remove(ctx context.Context, sessionID string) error {
	if err := s.store.Delete(ctx, sessionID); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.mirror, sessionID)
	for i, id := range s.order {
		if id == sessionID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	wasActive := s.active == sessionID
	var successor string
	if wasActive {
		s.active = ""
		if len(s.order) > 0 {
			successor = s.order[0]
		}
	}
	s.mu.Unlock()

	s.notify(SessionEvent{Type: EventSessionRemoved, SessionID: sessionID})

	if wasActive {
		if successor != "" {
			if err := s.activate(ctx, successor); err != nil {
				log.Printf("goSession: activate successor session %s: %v", successor, err)
			}
		} else if err := s.store.RemoveActive(ctx); err != nil {
			log.Printf("goSession: clear active pointer: %v", err)
		}
	}
	return nil
}

// removeAll deletes every session, key blob, and the active pointer.
func (s *sessionService) removeAll(ctx context.Context) error {
	if err := s.store.DeleteAll(ctx); err != nil {
		return err
	}
	if err := s.store.RemoveActive(ctx); err != nil {
		log.Printf("goSession: clear active pointer: %v", err)
	}

	s.mu.Lock()
	s.mirror = make(map[string]*session.Entry)
	s.order = nil
	s.active = ""
	s.mu.Unlock()

	s.notify(SessionEvent{Type: EventSessionsCleared})
	return nil
}

// get returns a clone of the entry, or nil when absent, malformed, or "".
func (s *sessionService) get(id string) *session.Entry {
	if id == "" {
		return nil
	}
	if _, err := internal.ParseSessionID(id); err != nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mirror[id].Clone()
}

// current returns a clone of the active entry, or nil when none is active.
func (s *sessionService) current() *session.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mirror[s.active].Clone()
}

// activeID returns the active session id, "" when none.
func (s *sessionService) activeID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// list returns clones of all entries in insertion order.
func (s *sessionService) list() []*session.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*session.Entry, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.mirror[id].Clone())
	}
	return out
}

// subscribe registers fn for session events. The returned function removes
// the subscription.
func (s *sessionService) subscribe(fn func(SessionEvent)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

func (s *sessionService) notify(ev SessionEvent) {
	s.mu.RLock()
	fns := make([]func(SessionEvent), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// expired reports whether the entry's expiry has passed.
func expired(e *session.Entry) bool {
	return e != nil && e.ExpireAt != nil && time.Now().After(*e.ExpireAt)
}
