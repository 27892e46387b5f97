package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultPopulatesBaselineValues(t *testing.T) {
	cfg := Default()
	require.NotEmpty(t, cfg.Ingestor.Topics)
	require.Positive(t, cfg.Retry.MaxAttempts)
	require.Positive(t, cfg.SMSGateway.QPS)
	require.Positive(t, cfg.PushGateway.QPS)
	require.Equal(t, "587", cfg.SMTP.Port)
}

func TestDurationHelpersConvertMillisecondFields(t *testing.T) {
	cfg := Default()
	require.Equal(t, time.Duration(cfg.Retry.ScanIntervalMS)*time.Millisecond, cfg.Retry.ScanInterval())
	require.Equal(t, time.Duration(cfg.Shutdown.GraceMS)*time.Millisecond, cfg.Shutdown.Grace())
}

func TestOverrideFromEnvAppliesStringAndIntOverrides(t *testing.T) {
	t.Setenv("SMS_GATEWAY_BASE_URL", "https://sms.example.com")
	t.Setenv("SMS_GATEWAY_TIMEOUT_MS", "9000")
	t.Setenv("INGESTOR_TOPICS", "a,b,c")

	cfg := Default()
	overrideFromEnv(&cfg)

	require.Equal(t, "https://sms.example.com", cfg.SMSGateway.BaseURL)
	require.Equal(t, 9000, cfg.SMSGateway.TimeoutMS)
	require.Len(t, cfg.Ingestor.Topics, 3)
}

func TestOverrideFromEnvIgnoresUnsetVars(t *testing.T) {
	os.Unsetenv("SMTP_HOST")
	cfg := Default()
	before := cfg.SMTP.Host
	overrideFromEnv(&cfg)
	require.Equal(t, before, cfg.SMTP.Host)
}

func TestOverrideFromEnvParsesBooleanUseTLS(t *testing.T) {
	t.Setenv("SMTP_USE_TLS", "true")
	cfg := Default()
	overrideFromEnv(&cfg)
	require.True(t, cfg.SMTP.UseTLS)

	t.Setenv("SMTP_USE_TLS", "0")
	cfg2 := Default()
	overrideFromEnv(&cfg2)
	require.False(t, cfg2.SMTP.UseTLS)
}
