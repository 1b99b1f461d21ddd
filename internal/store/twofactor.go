// Package store persists per-user two-factor state in Redis.
//
// Layout:
//
//	2fa:state:<userID>   -> hash {secret, enabled}
//	2fa:backup:<userID>  -> set of remaining backup codes
//	code_fail:<userID>   -> integer failure count (TTL = lockout window)
//	code_lockout:<userID> -> "1" (TTL = lockout duration)
//
// Backup codes live in a Redis set so that consumption is a single SREM:
// the code is removed if and only if it is still present, which makes
// concurrent reuse of the same code impossible.
package store

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jacobtartabini/joincircl-sub004/internal/models/entities"
)

type TwoFactorStore struct {
	client *redis.Client

	maxFailures    int
	lockoutSeconds int
}

func New(client *redis.Client, maxFailures, lockoutSeconds int) *TwoFactorStore {
	return &TwoFactorStore{
		client:         client,
		maxFailures:    maxFailures,
		lockoutSeconds: lockoutSeconds,
	}
}

func stateKey(userID string) string  { return "2fa:state:" + userID }
func backupKey(userID string) string { return "2fa:backup:" + userID }

// GetState returns the user's two-factor record, or nil when none exists.
func (s *TwoFactorStore) GetState(ctx context.Context, userID string) (*entities.TwoFactorState, error) {
	fields, err := s.client.HGetAll(ctx, stateKey(userID)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}
	enabled, _ := strconv.ParseBool(fields["enabled"])
	return &entities.TwoFactorState{
		Secret:  fields["secret"],
		Enabled: enabled,
	}, nil
}

// SaveSetup overwrites the user's two-factor record with a fresh secret and
// backup-code batch and resets enabled to false. Both keys are replaced in
// one transaction so a re-run of setup never leaves codes from a previous
// batch behind.
func (s *TwoFactorStore) SaveSetup(ctx context.Context, userID, secret string, backupCodes []string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, stateKey(userID), backupKey(userID))
		pipe.HSet(ctx, stateKey(userID), "secret", secret, "enabled", "false")
		if len(backupCodes) > 0 {
			members := make([]interface{}, len(backupCodes))
			for i, c := range backupCodes {
				members[i] = c
			}
			pipe.SAdd(ctx, backupKey(userID), members...)
		}
		return nil
	})
	return err
}

// SetEnabled flips the enabled flag on an existing record.
func (s *TwoFactorStore) SetEnabled(ctx context.Context, userID string, enabled bool) error {
	return s.client.HSet(ctx, stateKey(userID), "enabled", strconv.FormatBool(enabled)).Err()
}

// ConsumeBackupCode atomically removes code from the user's remaining set.
// It reports whether the code was present; a second call with the same code
// always reports false.
func (s *TwoFactorStore) ConsumeBackupCode(ctx context.Context, userID, code string) (bool, error) {
	removed, err := s.client.SRem(ctx, backupKey(userID), code).Result()
	if err != nil {
		return false, err
	}
	return removed == 1, nil
}

// BackupCodesRemaining returns the number of unused backup codes.
func (s *TwoFactorStore) BackupCodesRemaining(ctx context.Context, userID string) (int, error) {
	n, err := s.client.SCard(ctx, backupKey(userID)).Result()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// Clear removes the user's secret and backup codes entirely (disable 2FA).
func (s *TwoFactorStore) Clear(ctx context.Context, userID string) error {
	return s.client.Del(ctx, stateKey(userID), backupKey(userID)).Err()
}

// --- Verification failure lockout ---

func (s *TwoFactorStore) IsLocked(ctx context.Context, userID string) (bool, int64, error) {
	key := "code_lockout:" + userID
	ttl, err := s.client.TTL(ctx, key).Result()
	if err != nil && err != redis.Nil {
		return false, 0, err
	}
	if ttl > 0 {
		return true, int64(ttl.Seconds()), nil
	}
	return false, 0, nil
}

// RegisterFailure bumps the failure counter and locks verification once the
// configured threshold is reached. An existing lock keeps its TTL.
func (s *TwoFactorStore) RegisterFailure(ctx context.Context, userID string) (locked bool, ttlSeconds int64, err error) {
	failKey := "code_fail:" + userID
	count, err := s.client.Incr(ctx, failKey).Result()
	if err != nil {
		return false, 0, err
	}
	s.client.Expire(ctx, failKey, time.Duration(s.lockoutSeconds)*time.Second)
	if int(count) >= s.maxFailures {
		lockKey := "code_lockout:" + userID
		if ttl, err := s.client.TTL(ctx, lockKey).Result(); err == nil && ttl > 0 {
			return true, int64(ttl.Seconds()), nil
		}
		_ = s.client.Set(ctx, lockKey, "1", time.Duration(s.lockoutSeconds)*time.Second).Err()
		return true, int64(s.lockoutSeconds), nil
	}
	return false, 0, nil
}

func (s *TwoFactorStore) ClearFailures(ctx context.Context, userID string) {
	s.client.Del(ctx, "code_fail:"+userID)
}
