package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/smallnest/paperrag/rag"
	"github.com/smallnest/paperrag/store"
)

// maxTxAttempts bounds optimistic transaction retries when a watched key
// changes between read and commit.
const maxTxAttempts = 100

// RedisMetadataStore implements store.MetadataStore using Redis. Records are
// JSON values in one hash keyed by paper_id; a list holds the insertion order.
type RedisMetadataStore struct {
	client *redis.Client
	prefix string
}

var _ store.MetadataStore = (*RedisMetadataStore)(nil)

// RedisOptions configuration for Redis connection
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string // Key prefix, default "paperrag:"
}

// NewRedisMetadataStore creates a new Redis metadata store
func NewRedisMetadataStore(opts RedisOptions) *RedisMetadataStore {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return NewRedisMetadataStoreWithClient(client, opts.Prefix)
}

// NewRedisMetadataStoreWithClient creates a store over an existing client
func NewRedisMetadataStoreWithClient(client *redis.Client, prefix string) *RedisMetadataStore {
	if prefix == "" {
		prefix = "paperrag:"
	}
	return &RedisMetadataStore{
		client: client,
		prefix: prefix,
	}
}

func (s *RedisMetadataStore) recordsKey() string {
	return s.prefix + "papers"
}

func (s *RedisMetadataStore) orderKey() string {
	return s.prefix + "papers:order"
}

// Upsert writes the record inside a WATCH/MULTI transaction. The paper_id is
// appended to the order list only when the hash did not already hold it.
func (s *RedisMetadataStore) Upsert(ctx context.Context, record rag.PaperMetadata) error {
	if err := store.Validate(record); err != nil {
		return err
	}

	data, err := json.Marshal(store.Normalize(record))
	if err != nil {
		return fmt.Errorf("failed to marshal paper: %w", err)
	}

	err = s.transact(ctx, func(tx *redis.Tx) error {
		exists, err := tx.HExists(ctx, s.recordsKey(), record.PaperID).Result()
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, s.recordsKey(), record.PaperID, data)
			if !exists {
				pipe.RPush(ctx, s.orderKey(), record.PaperID)
			}
			return nil
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: failed to upsert paper %s: %w", rag.ErrStorageIO, record.PaperID, err)
	}
	return nil
}

// Get retrieves a record by paper_id
func (s *RedisMetadataStore) Get(ctx context.Context, paperID string) (*rag.PaperMetadata, error) {
	data, err := s.client.HGet(ctx, s.recordsKey(), paperID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: paper %s", rag.ErrNotFound, paperID)
		}
		return nil, fmt.Errorf("%w: failed to load paper from redis: %w", rag.ErrStorageIO, err)
	}

	var record rag.PaperMetadata
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal paper: %w", rag.ErrStorageIO, err)
	}
	return &record, nil
}

// LoadAll returns every record in insertion order
func (s *RedisMetadataStore) LoadAll(ctx context.Context) ([]rag.PaperMetadata, error) {
	ids, err := s.client.LRange(ctx, s.orderKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list papers: %w", rag.ErrStorageIO, err)
	}

	records := []rag.PaperMetadata{}
	if len(ids) == 0 {
		return records, nil
	}

	values, err := s.client.HMGet(ctx, s.recordsKey(), ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to fetch papers: %w", rag.ErrStorageIO, err)
	}

	for i, value := range values {
		// HMGet returns nil for ids whose record was removed mid-read.
		str, ok := value.(string)
		if !ok {
			continue
		}
		var record rag.PaperMetadata
		if err := json.Unmarshal([]byte(str), &record); err != nil {
			return nil, fmt.Errorf("%w: failed to unmarshal paper %s: %w", rag.ErrStorageIO, ids[i], err)
		}
		records = append(records, record)
	}
	return records, nil
}

// Delete removes the record and its order entry atomically
func (s *RedisMetadataStore) Delete(ctx context.Context, paperID string) error {
	err := s.transact(ctx, func(tx *redis.Tx) error {
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HDel(ctx, s.recordsKey(), paperID)
			pipe.LRem(ctx, s.orderKey(), 0, paperID)
			return nil
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: failed to delete paper: %w", rag.ErrStorageIO, err)
	}
	return nil
}

// Close closes the client
func (s *RedisMetadataStore) Close() error {
	return s.client.Close()
}

// transact runs fn under WATCH on both keys, retrying when another client
// commits in between.
func (s *RedisMetadataStore) transact(ctx context.Context, fn func(tx *redis.Tx) error) error {
	for range maxTxAttempts {
		err := s.client.Watch(ctx, fn, s.recordsKey(), s.orderKey())
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("transaction aborted after %d attempts: %w", maxTxAttempts, redis.TxFailedErr)
}
