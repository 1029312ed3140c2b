package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromViperDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	cfg := fromViper(v)
	require.NotNil(t, cfg)
	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
	assert.True(t, cfg.Cascade.ExclusiveCoordinator)
	assert.Equal(t, 5, cfg.Cascade.RetryMax)
	assert.Equal(t, 2*time.Second, cfg.Cascade.RetryDelay)
	assert.Equal(t, MailProviderConsole, cfg.Mail.Provider)
	assert.Contains(t, cfg.Uploads.AllowedMIMEs, "application/pdf")
	assert.Equal(t, int64(10*1024*1024), cfg.Uploads.MaxFileSizeBytes)
	assert.Equal(t, "http://localhost:8080", cfg.Uploads.PublicBaseURL)
}

func TestFromViperOverrides(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("CASCADE_EXCLUSIVE_COORDINATOR", false)
	v.Set("CASCADE_RETRY_WORKERS", 0)
	v.Set("CASCADE_RETRY_DELAY", "not-a-duration")
	v.Set("ALLOWED_ORIGINS", " https://a.example , ,https://b.example")
	v.Set("MAIL_PROVIDER", "SendGrid")
	v.Set("UPLOADS_PUBLIC_BASE_URL", "https://files.example/")

	cfg := fromViper(v)
	assert.False(t, cfg.Cascade.ExclusiveCoordinator)
	assert.Equal(t, 1, cfg.Cascade.RetryWorkers)
	assert.Equal(t, 2*time.Second, cfg.Cascade.RetryDelay)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, MailProviderSendGrid, cfg.Mail.Provider)
	assert.Equal(t, "https://files.example", cfg.Uploads.PublicBaseURL)
}
