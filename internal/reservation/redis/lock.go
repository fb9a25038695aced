package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// unlockScript deletes the lock only while it still carries our token.
var unlockScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

func (s *Store) cartLockKey(competitionID, userID string) string {
	return fmt.Sprintf("%s:cart_lock:%s:%s", s.Prefix, competitionID, userID)
}

// LockCart serializes changes to one user's cart in one competition. The lock
// lapses after ttl so a crashed holder cannot wedge the cart.
func (s *Store) LockCart(ctx context.Context, competitionID, userID, token string, ttl time.Duration) (bool, error) {
	return s.Client.SetNX(ctx, s.cartLockKey(competitionID, userID), token, ttl).Result()
}

// UnlockCart releases the lock if token still owns it; unlocking a lock held
// by someone else or already gone is a no-op.
func (s *Store) UnlockCart(ctx context.Context, competitionID, userID, token string) error {
	err := unlockScript.Run(ctx, s.Client, []string{s.cartLockKey(competitionID, userID)}, token).Err()
	if err == redis.Nil {
		return nil
	}
	return err
}
