package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.Equal(t, 28, cfg.Generation.HorizonDays)
	assert.Equal(t, 366, cfg.Generation.MaxRangeDays)
	assert.Equal(t, "0 2 * * *", cfg.Generation.CronSpec)
	assert.Equal(t, 5*time.Minute, cfg.Cache.LessonTTL)
	assert.True(t, cfg.Database.AutoMigrate)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("GENERATION_HORIZON_DAYS", "14")
	t.Setenv("GENERATION_WORKERS", "-3")
	t.Setenv("LESSON_CACHE_TTL", "not-a-duration")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("ENABLE_GENERATION_CRON", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 14, cfg.Generation.HorizonDays)
	assert.Equal(t, 2, cfg.Generation.Workers)
	assert.Equal(t, 5*time.Minute, cfg.Cache.LessonTTL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
	assert.True(t, cfg.Generation.CronEnabled)
}
