// Package redis implements workflow.Store backed by Redis. Each document's
// snapshot is one msgpack-encoded envelope under its own key, with the
// filterable fields mirrored into a Hash so list queries never decode
// snapshots they are going to discard.
//
// Usage:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	s := redisstore.New(client)
//	if err := s.Ping(ctx); err != nil { ... }
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/finshore/ledgerflow"
	"github.com/finshore/ledgerflow/id"
	"github.com/finshore/ledgerflow/workflow"
)

// Compile-time interface check.
var _ workflow.Store = (*Store)(nil)

// Key naming: all keys are prefixed with "ledgerflow:" to avoid collisions.
const keyPrefix = "ledgerflow:"

// stateKey returns the key for a snapshot: ledgerflow:state:{docID}
func stateKey(docID string) string { return keyPrefix + "state:" + docID }

// metaKey returns the Hash key carrying filter fields: ledgerflow:meta:{docID}
func metaKey(docID string) string { return keyPrefix + "meta:" + docID }

// docIDsKey is the Set tracking all document IDs for enumeration.
const docIDsKey = keyPrefix + "doc_ids"

// envelope is the persisted form. The snapshot rides along as JSON inside
// the msgpack envelope so decimal and ID fields reuse their JSON codecs.
type envelope struct {
	DocumentID string    `msgpack:"document_id"`
	Status     string    `msgpack:"status"`
	Paused     bool      `msgpack:"paused"`
	RiskLevel  string    `msgpack:"risk_level"`
	RetryCount int       `msgpack:"retry_count"`
	Snapshot   []byte    `msgpack:"snapshot"`
	CreatedAt  time.Time `msgpack:"created_at"`
	UpdatedAt  time.Time `msgpack:"updated_at"`
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Store implements workflow.Store backed by Redis.
type Store struct {
	client redis.Cmdable
	logger *slog.Logger
}

// New creates a new Redis-backed store. The caller owns the Redis client
// lifecycle.
func New(client redis.Cmdable, opts ...Option) *Store {
	s := &Store{client: client, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Client returns the underlying Redis client.
func (s *Store) Client() redis.Cmdable { return s.client }

// Migrate is a no-op for Redis (schemaless).
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping verifies the Redis connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close is a no-op — the caller owns the Redis client lifecycle.
func (s *Store) Close() error { return nil }

// SaveState overwrites the snapshot and filter Hash for the document in
// one transaction.
func (s *Store) SaveState(ctx context.Context, st *workflow.State) error {
	docID := st.DocumentID.String()

	snapshot, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("ledgerflow/redis: marshal state %s: %w", docID, err)
	}
	env, err := msgpack.Marshal(envelope{
		DocumentID: docID,
		Status:     string(st.Status),
		Paused:     st.Paused,
		RiskLevel:  st.RiskLevel.String(),
		RetryCount: st.RetryCount,
		Snapshot:   snapshot,
		CreatedAt:  st.CreatedAt,
		UpdatedAt:  st.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("ledgerflow/redis: encode envelope %s: %w", docID, err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, stateKey(docID), env, 0)
	pipe.HSet(ctx, metaKey(docID), map[string]any{
		"status":     string(st.Status),
		"paused":     strconv.FormatBool(st.Paused),
		"risk_level": st.RiskLevel.String(),
		"updated_at": st.UpdatedAt.UTC().Format(time.RFC3339Nano),
	})
	pipe.SAdd(ctx, docIDsKey, docID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("ledgerflow/redis: save state %s: %w", docID, err)
	}
	return nil
}

// GetState loads and decodes the snapshot for a document.
func (s *Store) GetState(ctx context.Context, docID id.DocumentID) (*workflow.State, error) {
	data, err := s.client.Get(ctx, stateKey(docID.String())).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ledgerflow.ErrWorkflowNotFound
		}
		return nil, fmt.Errorf("ledgerflow/redis: get state %s: %w", docID, err)
	}
	return decodeEnvelope(data)
}

// ListStates enumerates documents, filters on the meta Hash, and decodes
// snapshots only for matches. Results are sorted most recently updated
// first.
func (s *Store) ListStates(ctx context.Context, opts workflow.ListOpts) ([]*workflow.State, error) {
	docIDs, err := s.client.SMembers(ctx, docIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("ledgerflow/redis: list doc ids: %w", err)
	}

	type candidate struct {
		docID     string
		updatedAt time.Time
	}
	var matched []candidate

	for _, docID := range docIDs {
		meta, err := s.client.HGetAll(ctx, metaKey(docID)).Result()
		if err != nil {
			return nil, fmt.Errorf("ledgerflow/redis: meta %s: %w", docID, err)
		}
		if len(meta) == 0 {
			continue
		}
		if opts.Status != "" && meta["status"] != string(opts.Status) {
			continue
		}
		if opts.Paused != nil && meta["paused"] != strconv.FormatBool(*opts.Paused) {
			continue
		}
		if opts.RiskLevel != "" && meta["risk_level"] != opts.RiskLevel.String() {
			continue
		}
		updatedAt, _ := time.Parse(time.RFC3339Nano, meta["updated_at"])
		matched = append(matched, candidate{docID: docID, updatedAt: updatedAt})
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].updatedAt.After(matched[j].updatedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(matched) {
			return nil, nil
		}
		matched = matched[opts.Offset:]
	}
	if opts.Limit > 0 && len(matched) > opts.Limit {
		matched = matched[:opts.Limit]
	}

	out := make([]*workflow.State, 0, len(matched))
	for _, c := range matched {
		data, err := s.client.Get(ctx, stateKey(c.docID)).Bytes()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			return nil, fmt.Errorf("ledgerflow/redis: get state %s: %w", c.docID, err)
		}
		st, err := decodeEnvelope(data)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

// DeleteState removes the snapshot, meta Hash, and index entry.
func (s *Store) DeleteState(ctx context.Context, docID id.DocumentID) error {
	d := docID.String()
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, stateKey(d))
	pipe.Del(ctx, metaKey(d))
	pipe.SRem(ctx, docIDsKey, d)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("ledgerflow/redis: delete state %s: %w", d, err)
	}
	return nil
}

func decodeEnvelope(data []byte) (*workflow.State, error) {
	var env envelope
	if err := msgpack.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("ledgerflow/redis: decode envelope: %w", err)
	}
	var st workflow.State
	if err := json.Unmarshal(env.Snapshot, &st); err != nil {
		return nil, fmt.Errorf("ledgerflow/redis: unmarshal state %s: %w", env.DocumentID, err)
	}
	return &st, nil
}
