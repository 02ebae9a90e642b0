package vector

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/finshore/ledgerflow/id"
	"github.com/finshore/ledgerflow/workflow"
)

const (
	redisDocKey = "ledgerflow:vector:doc:"
	redisIDsKey = "ledgerflow:vector:ids"

	// metaPrefix namespaces caller metadata inside the document hash so
	// it cannot collide with the reserved text and indexed_at fields.
	metaPrefix = "meta:"
)

// RedisIndex stores indexed documents in Redis hashes. The caller owns the
// client lifecycle.
type RedisIndex struct {
	client redis.Cmdable
	logger *slog.Logger
}

var _ workflow.VectorIndex = (*RedisIndex)(nil)

// RedisOption customizes a RedisIndex.
type RedisOption func(*RedisIndex)

// WithRedisLogger sets the logger.
func WithRedisLogger(logger *slog.Logger) RedisOption {
	return func(i *RedisIndex) { i.logger = logger }
}

// NewRedis returns an index writing through client.
func NewRedis(client redis.Cmdable, opts ...RedisOption) *RedisIndex {
	i := &RedisIndex{
		client: client,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Index implements workflow.VectorIndex.
func (i *RedisIndex) Index(ctx context.Context, docID id.DocumentID, text string, meta map[string]string) error {
	if docID.IsNil() {
		return fmt.Errorf("vector: document id is required")
	}
	if text == "" {
		return fmt.Errorf("vector: empty text for document %s", docID)
	}

	fields := map[string]any{
		"text":       text,
		"indexed_at": time.Now().UTC().Format(time.RFC3339Nano),
	}
	for k, v := range meta {
		fields[metaPrefix+k] = v
	}

	key := redisDocKey + docID.String()
	pipe := i.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, fields)
	pipe.SAdd(ctx, redisIDsKey, docID.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("vector: index document %s: %w", docID, err)
	}

	i.logger.Debug("document indexed",
		slog.String("document_id", docID.String()),
		slog.Int("bytes", len(text)))
	return nil
}
