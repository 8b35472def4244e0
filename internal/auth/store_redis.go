// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/taibuivan/yomira-auth/internal/platform/constants"
)

// maxOtpUpdateRetries bounds optimistic retries when concurrent writers keep
// invalidating the WATCH on the same challenge.
const maxOtpUpdateRetries = 8

// Hash fields of a challenge entry.
const (
	otpFieldCodeHash  = "code_hash"
	otpFieldExpiresAt = "expires_at"
	otpFieldAttempts  = "attempts"
	otpFieldUsed      = "used"
	otpFieldCreatedAt = "created_at"
)

// errOtpContention is returned when every optimistic retry lost the race.
var errOtpContention = errors.New("redis_otp_update_failed: too much contention")

// # OTP Challenge Repository

// RedisOtpRepository implements [OtpChallengeRepository] with one Redis hash per identity.
//
// The key lives slightly longer than the challenge so that an expired challenge
// is still observed, and discarded, by the validator.
type RedisOtpRepository struct {
	client redis.UniversalClient
}

// NewOtpRepository creates a Redis-backed challenge store.
func NewOtpRepository(client redis.UniversalClient) *RedisOtpRepository {
	return &RedisOtpRepository{client: client}
}

func otpKey(identityID string) string {
	return constants.RedisPrefixOtp + identityID
}

/*
Replace stores challenge as the only challenge of its identity.

Description: DEL and HSET run in one MULTI/EXEC block, so readers observe
either the previous challenge or the new one and never both.

Parameters:
  - context: context.Context
  - challenge: *OtpChallenge

Returns:
  - error: Execution errors
*/
func (repository *RedisOtpRepository) Replace(context context.Context, challenge *OtpChallenge) error {
	key := otpKey(challenge.IdentityID)
	ttl := challenge.ExpiresAt.Sub(challenge.CreatedAt) + constants.OtpKeyGrace

	_, err := repository.client.TxPipelined(context, func(pipe redis.Pipeliner) error {
		pipe.Del(context, key)
		pipe.HSet(context, key, encodeChallenge(challenge))
		pipe.PExpire(context, key, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis_otp_replace_failed: %w", err)
	}
	return nil
}

// Find returns the stored challenge or nil.
func (repository *RedisOtpRepository) Find(context context.Context, identityID string) (*OtpChallenge, error) {
	values, err := repository.client.HGetAll(context, otpKey(identityID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis_otp_find_failed: %w", err)
	}
	return decodeChallenge(identityID, values)
}

/*
Update applies fn to the challenge under WATCH.

Description: When another client modifies the key between the read and the
EXEC, the transaction aborts with [redis.TxFailedErr] and fn runs again on
fresh data.

Returns:
  - error: fn's error, storage errors, or a contention error after repeated aborts
*/
func (repository *RedisOtpRepository) Update(context context.Context, identityID string, fn func(challenge *OtpChallenge) (OtpDecision, error)) error {
	key := otpKey(identityID)

	transaction := func(tx *redis.Tx) error {
		values, err := tx.HGetAll(context, key).Result()
		if err != nil {
			return fmt.Errorf("redis_otp_read_failed: %w", err)
		}
		challenge, err := decodeChallenge(identityID, values)
		if err != nil {
			return err
		}

		decision, err := fn(challenge)
		if err != nil {
			return err
		}

		switch decision {
		case OtpPersist:
			if challenge == nil {
				return nil
			}
			_, err = tx.TxPipelined(context, func(pipe redis.Pipeliner) error {
				pipe.HSet(context, key,
					otpFieldAttempts, challenge.Attempts,
					otpFieldUsed, challenge.Used,
				)
				return nil
			})
		case OtpDelete:
			_, err = tx.TxPipelined(context, func(pipe redis.Pipeliner) error {
				pipe.Del(context, key)
				return nil
			})
		}
		return err
	}

	for range maxOtpUpdateRetries {
		err := repository.client.Watch(context, transaction, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return errOtpContention
}

func encodeChallenge(challenge *OtpChallenge) map[string]any {
	return map[string]any{
		otpFieldCodeHash:  challenge.CodeHash,
		otpFieldExpiresAt: challenge.ExpiresAt.UnixMilli(),
		otpFieldAttempts:  challenge.Attempts,
		otpFieldUsed:      challenge.Used,
		otpFieldCreatedAt: challenge.CreatedAt.UnixMilli(),
	}
}

func decodeChallenge(identityID string, values map[string]string) (*OtpChallenge, error) {
	if len(values) == 0 {
		return nil, nil
	}

	expiresAt, err := strconv.ParseInt(values[otpFieldExpiresAt], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("redis_otp_decode_failed: %w", err)
	}
	createdAt, err := strconv.ParseInt(values[otpFieldCreatedAt], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("redis_otp_decode_failed: %w", err)
	}
	attempts, err := strconv.Atoi(values[otpFieldAttempts])
	if err != nil {
		return nil, fmt.Errorf("redis_otp_decode_failed: %w", err)
	}

	return &OtpChallenge{
		IdentityID: identityID,
		CodeHash:   values[otpFieldCodeHash],
		ExpiresAt:  time.UnixMilli(expiresAt),
		Attempts:   attempts,
		Used:       values[otpFieldUsed] == "1",
		CreatedAt:  time.UnixMilli(createdAt),
	}, nil
}
