package tokens

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisOTPStore keeps OTP hashes in Redis, one key per code so that
// multiple outstanding codes coexist and expiry is handled by TTL.
type RedisOTPStore struct {
	client *redis.Client
}

func NewRedisOTPStore(client *redis.Client) *RedisOTPStore {
	return &RedisOTPStore{client: client}
}

func otpKey(userID uuid.UUID, issuedAt int64) string {
	return fmt.Sprintf("otp:%s:%d", userID, issuedAt)
}

func otpPattern(userID uuid.UUID) string {
	return fmt.Sprintf("otp:%s:*", userID)
}

func (s *RedisOTPStore) SaveOTP(ctx context.Context, userID uuid.UUID, codeHash string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return fmt.Errorf("otp already expired")
	}
	key := otpKey(userID, time.Now().UTC().UnixNano())
	return s.client.Set(ctx, key, codeHash, ttl).Err()
}

func (s *RedisOTPStore) ConsumeOTP(ctx context.Context, userID uuid.UUID, match func(hash string) bool) (bool, error) {
	keys, err := s.userKeys(ctx, userID)
	if err != nil {
		return false, err
	}
	// newest first: keys embed the issue timestamp
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))

	for _, key := range keys {
		hash, err := s.client.Get(ctx, key).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return false, err
		}
		if !match(hash) {
			continue
		}
		deleted, err := s.client.Del(ctx, key).Result()
		if err != nil {
			return false, err
		}
		if deleted == 0 {
			// a parallel consume won the key
			continue
		}
		return true, nil
	}
	return false, nil
}

func (s *RedisOTPStore) userKeys(ctx context.Context, userID uuid.UUID) ([]string, error) {
	var keys []string
	var cursor uint64
	for {
		batch, next, err := s.client.Scan(ctx, cursor, otpPattern(userID), 100).Result()
		if err != nil {
			return nil, err
		}
		for _, key := range batch {
			if strings.HasPrefix(key, "otp:") {
				keys = append(keys, key)
			}
		}
		if next == 0 {
			return keys, nil
		}
		cursor = next
	}
}
