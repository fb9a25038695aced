package migrations

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"ms-raffle/internal/config"
)

func TestOptionsFromConfig(t *testing.T) {
	opts := OptionsFromConfig(config.DatabaseConfig{MigrationsDir: "/srv/migrations", AutoMigrate: true})
	assert.Equal(t, MigrateOptions{MigrationsDir: "/srv/migrations", AutoMigrate: true}, opts)
}

func TestRunMigrations_Disabled(t *testing.T) {
	r := NewRunner(nil, MigrateOptions{MigrationsDir: "./does-not-exist", AutoMigrate: false}, nil)
	assert.NoError(t, r.RunMigrations())
	assert.NoError(t, r.Close())
}
