package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBonusTiers(t *testing.T) {
	tiers, err := ParseBonusTiers("50:5, 10:1,20:3,15:2")
	require.NoError(t, err)
	assert.Equal(t, []BonusTier{
		{Threshold: 10, Bonus: 1},
		{Threshold: 15, Bonus: 2},
		{Threshold: 20, Bonus: 3},
		{Threshold: 50, Bonus: 5},
	}, tiers)

	tiers, err = ParseBonusTiers("")
	require.NoError(t, err)
	assert.Empty(t, tiers)

	for _, bad := range []string{"10", "x:1", "10:y", "0:1", "5:-1"} {
		_, err := ParseBonusTiers(bad)
		assert.Error(t, err, bad)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("RESERVATION_TTL", "")
	t.Setenv("BONUS_TIERS", "")
	t.Setenv("ALLOCATION_MAX_ATTEMPTS", "")

	cfg := Load()
	assert.Equal(t, 15*time.Minute, cfg.Reservation.TTL)
	assert.Equal(t, 5, cfg.Reservation.MaxAttempts)
	assert.Len(t, cfg.Reservation.BonusTiers, 4)
	assert.Equal(t, "raffle.reservations", cfg.Kafka.Topics.ReservationEvents)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("RESERVATION_TTL", "1s")
	t.Setenv("SWEEP_INTERVAL", "250ms")
	t.Setenv("ALLOCATION_MAX_ATTEMPTS", "3")
	t.Setenv("BONUS_TIERS", "5:1")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://shop.example")

	cfg := Load()
	assert.Equal(t, time.Second, cfg.Reservation.TTL)
	assert.Equal(t, 250*time.Millisecond, cfg.Reservation.SweepInterval)
	assert.Equal(t, 3, cfg.Reservation.MaxAttempts)
	assert.Equal(t, []BonusTier{{Threshold: 5, Bonus: 1}}, cfg.Reservation.BonusTiers)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, []string{"https://shop.example"}, cfg.Server.AllowedOrigins)
}

func TestLoadFallsBackOnBadTiers(t *testing.T) {
	t.Setenv("BONUS_TIERS", "garbage")
	cfg := Load()
	assert.Len(t, cfg.Reservation.BonusTiers, 4)
}
