package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"adspack/internal/domain"
	"adspack/internal/format"
	"adspack/internal/imagedata"
	"adspack/internal/orchestrator"
)

const redisKeyPrefix = "adspack:session:"

// RedisStore shares sessions between API replicas. Image payloads are stored
// under a key that Redis expires exactly at the end of the window; metadata
// lives for an extra Retention so expiry can still be reported.
//
// Redis drops the images on its own, so expiry is observed lazily: the first
// Get after the window closes, on any replica, claims an expired marker and
// runs onExpire.
type RedisStore struct {
	client   *redis.Client
	now      func() time.Time
	onExpire func(*Session)
}

type redisMeta struct {
	ID        string                 `json:"id"`
	CreatedAt time.Time              `json:"created_at"`
	TTL       time.Duration          `json:"ttl"`
	Requested []format.Key           `json:"requested"`
	Failures  []orchestrator.Failure `json:"failures"`
	Provider  string                 `json:"provider"`
	Model     string                 `json:"model"`
}

type redisImage struct {
	Data     []byte `json:"data"`
	MIMEType string `json:"mime_type"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

// NewRedisStore wraps client. now defaults to time.Now; onExpire may be nil.
func NewRedisStore(client *redis.Client, now func() time.Time, onExpire func(*Session)) *RedisStore {
	if now == nil {
		now = time.Now
	}
	return &RedisStore{client: client, now: now, onExpire: onExpire}
}

// NewRedisClient parses url and checks connectivity.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func metaKey(id string) string   { return redisKeyPrefix + id + ":meta" }
func imagesKey(id string) string { return redisKeyPrefix + id + ":images" }

func expiredKey(id string) string { return redisKeyPrefix + id + ":expired" }

func (r *RedisStore) Put(ctx context.Context, s *Session) error {
	left := Remaining(r.now(), s.CreatedAt, s.TTL)
	if left <= 0 {
		return domain.ErrSessionExpired
	}
	images, err := s.Images(r.now())
	if err != nil {
		return err
	}

	meta, err := json.Marshal(redisMeta{
		ID:        s.ID,
		CreatedAt: s.CreatedAt,
		TTL:       s.TTL,
		Requested: s.Requested,
		Failures:  s.Failures,
		Provider:  s.Provider,
		Model:     s.Model,
	})
	if err != nil {
		return fmt.Errorf("marshal session meta: %w", err)
	}
	stored := make(map[format.Key]redisImage, len(images))
	for k, img := range images {
		stored[k] = redisImage{Data: img.Data, MIMEType: img.MIMEType, Width: img.Width, Height: img.Height}
	}
	payload, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("marshal session images: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, metaKey(s.ID), meta, left+Retention)
		pipe.Set(ctx, imagesKey(s.ID), payload, left)
		return nil
	})
	if err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	return nil
}

func (r *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	raw, err := r.client.Get(ctx, metaKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session meta: %w", err)
	}
	var meta redisMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("decode session meta: %w", err)
	}

	s := &Session{
		ID:        meta.ID,
		CreatedAt: meta.CreatedAt,
		TTL:       meta.TTL,
		Requested: meta.Requested,
		Failures:  meta.Failures,
		Provider:  meta.Provider,
		Model:     meta.Model,
		images:    map[format.Key]imagedata.Image{},
	}
	if s.Check(r.now()) == StateExpired {
		if err := r.recordExpiry(ctx, s); err != nil {
			return nil, err
		}
		return s, nil
	}

	payload, err := r.client.Get(ctx, imagesKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session images: %w", err)
	}
	var stored map[format.Key]redisImage
	if err := json.Unmarshal(payload, &stored); err != nil {
		return nil, fmt.Errorf("decode session images: %w", err)
	}
	for k, img := range stored {
		s.images[k] = imagedata.Image{Data: img.Data, MIMEType: img.MIMEType, Width: img.Width, Height: img.Height}
	}
	return s, nil
}

// recordExpiry runs onExpire for the one caller that claims the expired
// marker, so each session is counted once across replicas.
func (r *RedisStore) recordExpiry(ctx context.Context, s *Session) error {
	if r.onExpire == nil {
		return nil
	}
	claimed, err := r.client.SetNX(ctx, expiredKey(s.ID), 1, Retention).Result()
	if err != nil {
		return fmt.Errorf("mark session expired: %w", err)
	}
	if claimed {
		r.onExpire(s)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, metaKey(id), imagesKey(id), expiredKey(id)).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

var _ Store = (*RedisStore)(nil)
