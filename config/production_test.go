package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *ProductionConfig {
	return &ProductionConfig{
		Database: DatabaseConfig{Host: "localhost", Port: 5432, Name: "lots", User: "app", Password: "secret", LockTimeout: time.Second},
		Server:   ServerConfig{Port: 8080, ReadTimeout: time.Second, WriteTimeout: time.Second, IdleTimeout: time.Second},
		JWT:      JWTConfig{SecretKey: strings.Repeat("k", 32), Issuer: "pelattahub", Audience: "pelattahub-api"},
		Logging:  LoggingConfig{Level: "info", Output: "stdout"},
		GS1:      GS1Config{RepairEnabled: true, RepairInterval: time.Hour, RepairLockTTL: time.Minute},
	}
}

func TestValidateProductionConfig(t *testing.T) {
	require.NoError(t, ValidateProductionConfig(validConfig()))

	tests := []struct {
		name   string
		mutate func(*ProductionConfig)
		want   string
	}{
		{"missing password", func(c *ProductionConfig) { c.Database.Password = "" }, "DB_PASSWORD is required"},
		{"short jwt secret", func(c *ProductionConfig) { c.JWT.SecretKey = "short" }, "JWT_SECRET_KEY"},
		{"rsa without key", func(c *ProductionConfig) { c.JWT.UseRSAKeys = true }, "JWT_PUBLIC_KEY"},
		{"bad log level", func(c *ProductionConfig) { c.Logging.Level = "trace" }, "LOG_LEVEL"},
		{"file output without path", func(c *ProductionConfig) { c.Logging.Output = "file" }, "LOG_FILE_PATH"},
		{"bad company prefix", func(c *ProductionConfig) { c.GS1.DefaultCompanyPrefix = "12AB56" }, "GS1_COMPANY_PREFIX"},
		{"queue without url", func(c *ProductionConfig) { c.Queue.Enabled = true; c.Queue.Exchange = "labels" }, "QUEUE_AMQP_URL"},
		{"node id out of range", func(c *ProductionConfig) { c.Deployment.NodeID = 2048 }, "NODE_ID"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := ValidateProductionConfig(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateAcceptsFormattedPrefix(t *testing.T) {
	cfg := validConfig()
	cfg.GS1.DefaultCompanyPrefix = "012-345"
	assert.NoError(t, ValidateProductionConfig(cfg))
}

func TestLoadEnvFileKeepsExistingValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("PELATTA_TEST_A=from-file\nPELATTA_TEST_B=\"quoted\"\n"), 0o600))

	t.Setenv("PELATTA_TEST_A", "from-env")
	t.Setenv("PELATTA_TEST_B", "")
	require.NoError(t, os.Unsetenv("PELATTA_TEST_B"))

	require.NoError(t, loadEnvFile(path))
	assert.Equal(t, "from-env", os.Getenv("PELATTA_TEST_A"))
	assert.Equal(t, "quoted", os.Getenv("PELATTA_TEST_B"))
}

func TestLoadEnvFileMissing(t *testing.T) {
	assert.NoError(t, loadEnvFile(filepath.Join(t.TempDir(), "absent.env")))
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("PELATTA_INT", "42")
	t.Setenv("PELATTA_BAD_INT", "x")
	t.Setenv("PELATTA_DUR", "90s")
	t.Setenv("PELATTA_SLICE", " a, ,b ")

	assert.Equal(t, 42, getEnvInt("PELATTA_INT", 1))
	assert.Equal(t, 1, getEnvInt("PELATTA_BAD_INT", 1))
	assert.Equal(t, 90*time.Second, getEnvDuration("PELATTA_DUR", time.Second))
	assert.Equal(t, []string{"a", "b"}, getEnvStringSlice("PELATTA_SLICE", nil))
	assert.Equal(t, "fallback", getEnvString("PELATTA_UNSET_VALUE", "fallback"))
}
