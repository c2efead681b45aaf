package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Namespaces used by the intake agent.
const (
	NamespacePending    = "pending"
	NamespaceDeadLetter = "dead_letter"
)

// Record is one persisted entry in insertion order.
type Record struct {
	Key     string
	Payload []byte
}

// Store is the durable backing of a queue namespace. Implementations
// must preserve insertion order and be the only copy of the data.
// Appending an existing key replaces its payload in place.
type Store interface {
	Append(ctx context.Context, key string, payload []byte) error
	Load(ctx context.Context) ([]Record, error)
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
}

// SQLiteStore keeps a namespace in the queue_entries table.
type SQLiteStore struct {
	db        *sql.DB
	namespace string
}

// NewSQLiteStore binds a namespace of queue_entries. The schema is
// created by persistence.RunMigrations.
func NewSQLiteStore(db *sql.DB, namespace string) *SQLiteStore {
	return &SQLiteStore{db: db, namespace: namespace}
}

func (s *SQLiteStore) Append(ctx context.Context, key string, payload []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO queue_entries(namespace, entry_key, payload) VALUES (?, ?, ?)
		 ON CONFLICT(namespace, entry_key) DO UPDATE SET payload = excluded.payload`,
		s.namespace, key, string(payload))
	if err != nil {
		return fmt.Errorf("append queue entry: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT entry_key, payload FROM queue_entries WHERE namespace = ? ORDER BY seq ASC`,
		s.namespace)
	if err != nil {
		return nil, fmt.Errorf("load queue entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []Record
	for rows.Next() {
		var key, payload string
		if err := rows.Scan(&key, &payload); err != nil {
			return nil, fmt.Errorf("scan queue entry: %w", err)
		}
		records = append(records, Record{Key: key, Payload: []byte(payload)})
	}
	return records, rows.Err()
}

func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM queue_entries WHERE namespace = ? AND entry_key = ?`,
		s.namespace, key)
	if err != nil {
		return fmt.Errorf("delete queue entry: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	if s.db == nil {
		return errors.New("sqlite store not configured")
	}
	return s.db.PingContext(ctx)
}

// RedisStore keeps a namespace as a list of keys (order) plus a hash of
// payloads under "<prefix>:<namespace>".
type RedisStore struct {
	client  redis.UniversalClient
	listKey string
	hashKey string
}

// NewRedisStore binds a namespace under prefix.
func NewRedisStore(client redis.UniversalClient, prefix, namespace string) *RedisStore {
	base := prefix + ":" + namespace
	return &RedisStore{client: client, listKey: base + ":order", hashKey: base + ":entries"}
}

// redisAppendScript stores the payload and pushes the key onto the order
// list only when the key is new, so re-appending replaces in place.
// KEYS[1] = entries hash, KEYS[2] = order list
// ARGV[1] = entry key, ARGV[2] = payload
var redisAppendScript = redis.NewScript(`
if redis.call("HSETNX", KEYS[1], ARGV[1], ARGV[2]) == 1 then
    redis.call("RPUSH", KEYS[2], ARGV[1])
    return 1
end
redis.call("HSET", KEYS[1], ARGV[1], ARGV[2])
return 0
`)

func (s *RedisStore) Append(ctx context.Context, key string, payload []byte) error {
	err := redisAppendScript.Run(ctx, s.client, []string{s.hashKey, s.listKey}, key, payload).Err()
	if err != nil {
		return fmt.Errorf("append queue entry: %w", err)
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context) ([]Record, error) {
	keys, err := s.client.LRange(ctx, s.listKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load queue order: %w", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}
	values, err := s.client.HMGet(ctx, s.hashKey, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load queue entries: %w", err)
	}
	records := make([]Record, 0, len(keys))
	for i, key := range keys {
		// a key without payload is surfaced as an empty record and
		// dropped by the queue's decoder
		var payload []byte
		if s, ok := values[i].(string); ok {
			payload = []byte(s)
		}
		records = append(records, Record{Key: key, Payload: payload})
	}
	return records, nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, s.listKey, 0, key)
		pipe.HDel(ctx, s.hashKey, key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete queue entry: %w", err)
	}
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
