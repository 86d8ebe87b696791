package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const HeaderIdempotencyKey = "Idempotency-Key"

// StoredResponse is what a completed idempotent request replays. A record
// with Pending set is a request still in flight.
type StoredResponse struct {
	Pending     bool   `json:"pending,omitempty"`
	BodyHash    string `json:"body_hash"`
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// IdempotencyStore persists responses by key.
type IdempotencyStore interface {
	// Reserve claims key for a new request. It reports false if the key is
	// already taken, pending or complete.
	Reserve(ctx context.Context, key, bodyHash string, ttl time.Duration) (bool, error)
	Load(ctx context.Context, key string) (*StoredResponse, error)
	Save(ctx context.Context, key string, resp StoredResponse, ttl time.Duration) error
	Release(ctx context.Context, key string) error
}

// Idempotency makes mutating requests that carry an Idempotency-Key header
// safe to retry: the first response below 500 is stored and replayed for the
// same key. Keys are scoped to the caller and the route. Reusing a key with a
// different body is rejected with 422, and a retry that arrives while the
// first attempt is still running gets 409.
func Idempotency(store IdempotencyStore, ttl time.Duration, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get(HeaderIdempotencyKey))
			if raw == "" || r.Method == http.MethodGet || r.Method == http.MethodHead {
				next.ServeHTTP(w, r)
				return
			}

			bodyBytes, err := io.ReadAll(r.Body)
			r.Body.Close()
			if err != nil {
				writeError(w, http.StatusBadRequest, "failed to read body")
				return
			}
			// Restore body for the handler.
			r.Body = io.NopCloser(bytes.NewReader(bodyBytes))
			sum := sha256.Sum256(bodyBytes)
			bodyHash := hex.EncodeToString(sum[:])

			key := scopedKey(r, raw)
			ok, err := store.Reserve(r.Context(), key, bodyHash, ttl)
			if err != nil {
				logger.Error("idempotency reserve failed", "error", err)
				writeError(w, http.StatusServiceUnavailable, "idempotency store unavailable")
				return
			}
			if !ok {
				replay(w, r, store, key, bodyHash, logger)
				return
			}

			// A panicking handler must not leave the key pending until it
			// expires; release it and let the recoverer further out report.
			defer func() {
				if v := recover(); v != nil {
					ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), 5*time.Second)
					defer cancel()
					if err := store.Release(ctx, key); err != nil {
						logger.Error("idempotency release failed", "error", err)
					}
					panic(v)
				}
			}()

			rec := &recorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			// Use a fresh context: the request may be cancelled once the
			// response is written.
			ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), 5*time.Second)
			defer cancel()
			if rec.status >= 500 {
				if err := store.Release(ctx, key); err != nil {
					logger.Error("idempotency release failed", "error", err)
				}
				return
			}
			resp := StoredResponse{
				BodyHash:    bodyHash,
				Status:      rec.status,
				ContentType: rec.Header().Get("Content-Type"),
				Body:        rec.body.Bytes(),
			}
			if err := store.Save(ctx, key, resp, ttl); err != nil {
				logger.Error("idempotency save failed", "error", err)
			}
		})
	}
}

func replay(w http.ResponseWriter, r *http.Request, store IdempotencyStore, key, bodyHash string, logger *slog.Logger) {
	prev, err := store.Load(r.Context(), key)
	if err != nil {
		logger.Error("idempotency load failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "idempotency store unavailable")
		return
	}
	switch {
	case prev == nil || prev.Pending:
		writeError(w, http.StatusConflict, "a request with this Idempotency-Key is still in progress")
	case prev.BodyHash != bodyHash:
		writeError(w, http.StatusUnprocessableEntity, "Idempotency-Key was already used with a different request body")
	default:
		if prev.ContentType != "" {
			w.Header().Set("Content-Type", prev.ContentType)
		}
		w.Header().Set("Idempotent-Replayed", "true")
		w.WriteHeader(prev.Status)
		_, _ = w.Write(prev.Body)
	}
}

func scopedKey(r *http.Request, raw string) string {
	who := "anonymous"
	if p := PrincipalFromCtx(r.Context()); p != nil {
		who = p.UserID.String()
	}
	return "idem:" + who + ":" + r.Method + ":" + r.URL.Path + ":" + raw
}

type recorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (r *recorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *recorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

// ---------------------------------------------------------------------------
// Redis
// ---------------------------------------------------------------------------

// RedisIdempotencyStore keeps records in Redis with a TTL.
type RedisIdempotencyStore struct {
	client *redis.Client
}

func NewRedisIdempotencyStore(client *redis.Client) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{client: client}
}

func (s *RedisIdempotencyStore) Reserve(ctx context.Context, key, bodyHash string, ttl time.Duration) (bool, error) {
	raw, err := json.Marshal(StoredResponse{Pending: true, BodyHash: bodyHash})
	if err != nil {
		return false, err
	}
	return s.client.SetNX(ctx, key, raw, ttl).Result()
}

func (s *RedisIdempotencyStore) Load(ctx context.Context, key string) (*StoredResponse, error) {
	raw, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var out StoredResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *RedisIdempotencyStore) Save(ctx context.Context, key string, resp StoredResponse, ttl time.Duration) error {
	raw, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key, raw, ttl).Err()
}

func (s *RedisIdempotencyStore) Release(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

// ConnectRedis initializes a Redis client from URL or host:port input.
func ConnectRedis(redisURL string) (*redis.Client, error) {
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, err
		}
		return pingRedis(redis.NewClient(opt))
	}
	return pingRedis(redis.NewClient(&redis.Options{Addr: redisURL}))
}

func pingRedis(client *redis.Client) (*redis.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// ---------------------------------------------------------------------------
// Memory
// ---------------------------------------------------------------------------

// MemoryIdempotencyStore is a single-process IdempotencyStore.
type MemoryIdempotencyStore struct {
	mu      sync.Mutex
	records map[string]memoryRecord
	now     func() time.Time
}

type memoryRecord struct {
	resp    StoredResponse
	expires time.Time
}

func NewMemoryIdempotencyStore() *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{records: make(map[string]memoryRecord), now: time.Now}
}

func (s *MemoryIdempotencyStore) Reserve(_ context.Context, key, bodyHash string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[key]; ok && s.now().Before(rec.expires) {
		return false, nil
	}
	s.records[key] = memoryRecord{resp: StoredResponse{Pending: true, BodyHash: bodyHash}, expires: s.now().Add(ttl)}
	return true, nil
}

func (s *MemoryIdempotencyStore) Load(_ context.Context, key string) (*StoredResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	if !ok || !s.now().Before(rec.expires) {
		return nil, nil
	}
	cp := rec.resp
	return &cp, nil
}

func (s *MemoryIdempotencyStore) Save(_ context.Context, key string, resp StoredResponse, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[key] = memoryRecord{resp: resp, expires: s.now().Add(ttl)}
	return nil
}

func (s *MemoryIdempotencyStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
	return nil
}
