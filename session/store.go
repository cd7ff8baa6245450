package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrStoreUnavailable is an exported constant or variable used by the session engine.
var ErrStoreUnavailable = errors.New("session store unavailable")

// ErrEntryNotFound is returned when a registry entry does not exist.
var ErrEntryNotFound = errors.New("session entry not found")

// ErrKeyBlobNotFound is returned when no key blob is stored for a session id.
var ErrKeyBlobNotFound = errors.New("session key blob not found")

// Change is a cross-instance notification: the well-known key that was
// written and its new raw value. Changes are only delivered to instances
// other than the writer.
type Change struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type changeMessage struct {
	Writer string `json:"writer"`
	Key    string `json:"key"`
	Value  string `json:"value"`
}

// Store is the Redis-backed persistence layer: session registry, active
// pointer, key-blob object store, and the change-notification channel.
//
// Store instances are intended to be configured during initialization and
// then treated as immutable unless documented otherwise.
type Store struct {
	redis    redis.UniversalClient
	prefix   string
	writerID string
}

// NewStore creates a [Store] backed by the given Redis client. prefix sets
// the key namespace shared by all instances of the same client.
func NewStore(rdb redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "gs"
	}
	return &Store{
		redis:    rdb,
		prefix:   prefix,
		writerID: uuid.NewString(),
	}
}

// RegistryKey returns the well-known key holding the serialized registry list.
func (s *Store) RegistryKey() string {
	return s.prefix + ":sessions"
}

// ActiveKey returns the well-known key holding the active session id.
func (s *Store) ActiveKey() string {
	return s.prefix + ":active"
}

func (s *Store) keyBlobKey(sessionID string) string {
	return s.prefix + ":kp:" + sessionID
}

func (s *Store) channel() string {
	return s.prefix + ":changes"
}

// WriterID returns this instance's writer id used to filter self-notifications.
func (s *Store) WriterID() string {
	return s.writerID
}

// GetAll returns every registry entry in insertion order.
func (s *Store) GetAll(ctx context.Context) ([]*Entry, error) {
	data, err := s.redis.Get(ctx, s.RegistryKey()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []*Entry{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return decodeRegistry(data)
}

// Get returns the registry entry with the given id, or [ErrEntryNotFound].
func (s *Store) Get(ctx context.Context, id string) (*Entry, error) {
	entries, err := s.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, ErrEntryNotFound
}

// Insert appends a new entry to the registry. Last-write-wins.
func (s *Store) Insert(ctx context.Context, entry *Entry) error {
	entries, err := s.GetAll(ctx)
	if err != nil {
		return err
	}
	entries = append(entries, entry)
	return s.writeRegistry(ctx, entries)
}

// Update replaces the entry with the same id. Returns [ErrEntryNotFound]
// when no entry matches.
func (s *Store) Update(ctx context.Context, entry *Entry) error {
	entries, err := s.GetAll(ctx)
	if err != nil {
		return err
	}
	for i, e := range entries {
		if e.ID == entry.ID {
			entries[i] = entry
			return s.writeRegistry(ctx, entries)
		}
	}
	return ErrEntryNotFound
}

// Upsert replaces the entry with the same id or appends it.
func (s *Store) Upsert(ctx context.Context, entry *Entry) error {
	entries, err := s.GetAll(ctx)
	if err != nil {
		return err
	}
	for i, e := range entries {
		if e.ID == entry.ID {
			entries[i] = entry
			return s.writeRegistry(ctx, entries)
		}
	}
	entries = append(entries, entry)
	return s.writeRegistry(ctx, entries)
}

// Delete removes the registry entry and its key blob as a single observable
// unit. Deleting an absent entry is a no-op.
func (s *Store) Delete(ctx context.Context, id string) error {
	entries, err := s.GetAll(ctx)
	if err != nil {
		return err
	}

	kept := make([]*Entry, 0, len(entries))
	for _, e := range entries {
		if e.ID != id {
			kept = append(kept, e)
		}
	}

	data, err := encodeRegistry(kept)
	if err != nil {
		return err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.RegistryKey(), data, 0)
		pipe.Del(ctx, s.keyBlobKey(id))
		pipe.Publish(ctx, s.channel(), s.changePayload(s.RegistryKey(), string(data)))
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// DeleteAll clears the registry and every stored key blob.
func (s *Store) DeleteAll(ctx context.Context) error {
	entries, err := s.GetAll(ctx)
	if err != nil {
		return err
	}

	blobKeys := make([]string, 0, len(entries))
	for _, e := range entries {
		blobKeys = append(blobKeys, s.keyBlobKey(e.ID))
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.RegistryKey())
		if len(blobKeys) > 0 {
			pipe.Del(ctx, blobKeys...)
		}
		pipe.Publish(ctx, s.channel(), s.changePayload(s.RegistryKey(), "[]"))
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// GetActive returns the active session id, or "" when no pointer is set.
func (s *Store) GetActive(ctx context.Context) (string, error) {
	id, err := s.redis.Get(ctx, s.ActiveKey()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return id, nil
}

// SetActive persists the active session pointer and notifies other instances.
func (s *Store) SetActive(ctx context.Context, id string) error {
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.ActiveKey(), id, 0)
		pipe.Publish(ctx, s.channel(), s.changePayload(s.ActiveKey(), id))
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// RemoveActive clears the active session pointer and notifies other instances.
func (s *Store) RemoveActive(ctx context.Context) error {
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.ActiveKey())
		pipe.Publish(ctx, s.channel(), s.changePayload(s.ActiveKey(), ""))
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// SaveKeyBlob stores an opaque key blob for a session id. Blobs survive
// process restarts; they are device-local and never synchronized beyond the
// store's own semantics.
func (s *Store) SaveKeyBlob(ctx context.Context, sessionID string, blob []byte) error {
	if err := s.redis.Set(ctx, s.keyBlobKey(sessionID), blob, 0).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// LoadKeyBlob returns the stored key blob for a session id, or
// [ErrKeyBlobNotFound].
func (s *Store) LoadKeyBlob(ctx context.Context, sessionID string) ([]byte, error) {
	blob, err := s.redis.Get(ctx, s.keyBlobKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrKeyBlobNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return blob, nil
}

// DeleteKeyBlob removes the stored key blob for a session id.
func (s *Store) DeleteKeyBlob(ctx context.Context, sessionID string) error {
	if err := s.redis.Del(ctx, s.keyBlobKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// HasKeyBlob reports whether a key blob exists for a session id.
func (s *Store) HasKeyBlob(ctx context.Context, sessionID string) (bool, error) {
	n, err := s.redis.Exists(ctx, s.keyBlobKey(sessionID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return n > 0, nil
}

// Changes subscribes fn to cross-instance change notifications. Writes made
// through this Store instance are filtered out. The returned function stops
// the subscription.
func (s *Store) Changes(ctx context.Context, fn func(Change)) (func(), error) {
	sub := s.redis.Subscribe(ctx, s.channel())
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	done := make(chan struct{})
	go func() {
		ch := sub.Channel()
		for {
			select {
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var cm changeMessage
				if err := json.Unmarshal([]byte(msg.Payload), &cm); err != nil {
					continue
				}
				if cm.Writer == s.writerID {
					continue
				}
				fn(Change{Key: cm.Key, Value: cm.Value})
			case <-done:
				return
			}
		}
	}()

	var stopOnce sync.Once
	stop := func() {
		stopOnce.Do(func() {
			close(done)
			_ = sub.Close()
		})
	}
	return stop, nil
}

// Ping returns a point-in-time store availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return time.Since(start), nil
}

func (s *Store) writeRegistry(ctx context.Context, entries []*Entry) error {
	data, err := encodeRegistry(entries)
	if err != nil {
		return err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.RegistryKey(), data, 0)
		pipe.Publish(ctx, s.channel(), s.changePayload(s.RegistryKey(), string(data)))
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *Store) changePayload(key, value string) string {
	data, err := json.Marshal(changeMessage{
		Writer: s.writerID,
		Key:    key,
		Value:  value,
	})
	if err != nil {
		return "{}"
	}
	return string(data)
}

func encodeRegistry(entries []*Entry) ([]byte, error) {
	if entries == nil {
		entries = []*Entry{}
	}
	return json.Marshal(entries)
}

func decodeRegistry(data []byte) ([]*Entry, error) {
	var entries []*Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("corrupt session registry: %w", err)
	}
	if entries == nil {
		entries = []*Entry{}
	}
	return entries, nil
}
