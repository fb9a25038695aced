package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"ms-raffle/internal/logger"
	"ms-raffle/internal/models"

	"github.com/go-redis/redis/v8"
)

// popExpiredScript atomically takes up to ARGV[2] index members whose expiry
// score is at or before ARGV[1].
var popExpiredScript = redis.NewScript(`
local members = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
if #members > 0 then
	redis.call('ZREM', KEYS[1], unpack(members))
end
return members
`)

const popBatchSize = 500

// Key identifies a reservation.
type Key struct {
	CompetitionID string
	UserID        string
}

// Store is the fast, time-boxed index of who holds which ticket numbers. It
// is advisory: the ticket pool stays authoritative.
type Store struct {
	Client *redis.Client
	Prefix string
	Logger *logger.Logger
	Now    func() time.Time
}

func NewStore(client *redis.Client, prefix string, log *logger.Logger) *Store {
	if prefix == "" {
		prefix = "raffle"
	}
	return &Store{
		Client: client,
		Prefix: prefix,
		Logger: log,
		Now:    time.Now,
	}
}

func (s *Store) reservationKey(competitionID, userID string) string {
	return fmt.Sprintf("%s:reservation:%s:%s", s.Prefix, competitionID, userID)
}

func (s *Store) indexKey() string {
	return s.Prefix + ":reservations:expiry"
}

func indexMember(competitionID, userID string) string {
	return competitionID + "|" + userID
}

func parseIndexMember(member string) (Key, bool) {
	parts := strings.SplitN(member, "|", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Key{}, false
	}
	return Key{CompetitionID: parts[0], UserID: parts[1]}, true
}

// Put creates or replaces the single reservation of a user in a competition.
func (s *Store) Put(ctx context.Context, competitionID, userID string, numbers, bonus []int, ttl time.Duration) (time.Time, error) {
	expiresAt := s.Now().Add(ttl).UTC()
	value, err := json.Marshal(models.Reservation{
		CompetitionID: competitionID,
		UserID:        userID,
		TicketNumbers: numbers,
		BonusNumbers:  bonus,
		ExpiresAt:     expiresAt,
	})
	if err != nil {
		return time.Time{}, err
	}

	pipe := s.Client.TxPipeline()
	pipe.Set(ctx, s.reservationKey(competitionID, userID), value, ttl)
	pipe.ZAdd(ctx, s.indexKey(), &redis.Z{
		Score:  float64(expiresAt.UnixMilli()),
		Member: indexMember(competitionID, userID),
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return time.Time{}, fmt.Errorf("store reservation %s/%s: %w", competitionID, userID, err)
	}
	return expiresAt, nil
}

// Get returns the live reservation, or nil when there is none. An entry past
// its expiry is reported as absent even if Redis has not evicted it yet.
func (s *Store) Get(ctx context.Context, competitionID, userID string) (*models.Reservation, error) {
	raw, err := s.Client.Get(ctx, s.reservationKey(competitionID, userID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var reservation models.Reservation
	if err := json.Unmarshal(raw, &reservation); err != nil {
		return nil, fmt.Errorf("decode reservation %s/%s: %w", competitionID, userID, err)
	}
	if reservation.Expired(s.Now()) {
		return nil, nil
	}
	return &reservation, nil
}

// Remove deletes the reservation; removing a missing one is fine.
func (s *Store) Remove(ctx context.Context, competitionID, userID string) error {
	pipe := s.Client.TxPipeline()
	pipe.Del(ctx, s.reservationKey(competitionID, userID))
	pipe.ZRem(ctx, s.indexKey(), indexMember(competitionID, userID))
	_, err := pipe.Exec(ctx)
	return err
}

// PopExpired removes and returns the index entries that expired at or before now.
func (s *Store) PopExpired(ctx context.Context, now time.Time) ([]Key, error) {
	res, err := popExpiredScript.Run(ctx, s.Client, []string{s.indexKey()},
		strconv.FormatInt(now.UnixMilli(), 10), popBatchSize).StringSlice()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("pop expired reservations: %w", err)
	}

	keys := make([]Key, 0, len(res))
	for _, member := range res {
		if key, ok := parseIndexMember(member); ok {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// EnableExpiryNotifications turns on keyspace events for expired keys.
func (s *Store) EnableExpiryNotifications(ctx context.Context) error {
	return s.Client.ConfigSet(ctx, "notify-keyspace-events", "Ex").Err()
}

// SubscribeExpirations calls handler for every reservation key Redis evicts
// on TTL. It returns once the subscription is established; delivery runs
// until ctx is cancelled.
func (s *Store) SubscribeExpirations(ctx context.Context, handler func(Key)) error {
	channel := fmt.Sprintf("__keyevent@%d__:expired", s.Client.Options().DB)
	pubsub := s.Client.PSubscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return fmt.Errorf("subscribe to %s: %w", channel, err)
	}
	s.Logger.Info("REDIS", fmt.Sprintf("Subscribed to reservation expiry notifications on %s", channel))

	go func() {
		defer pubsub.Close()
		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				if key, ok := s.ParseReservationKey(msg.Payload); ok {
					s.Logger.Debug("REDIS", fmt.Sprintf("Reservation expired: %s/%s", key.CompetitionID, key.UserID))
					handler(key)
				}
			}
		}
	}()
	return nil
}

// ParseReservationKey maps a Redis key name back to its reservation.
func (s *Store) ParseReservationKey(redisKey string) (Key, bool) {
	prefix := s.Prefix + ":reservation:"
	if !strings.HasPrefix(redisKey, prefix) {
		return Key{}, false
	}
	parts := strings.SplitN(strings.TrimPrefix(redisKey, prefix), ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Key{}, false
	}
	return Key{CompetitionID: parts[0], UserID: parts[1]}, true
}
