package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yourorg/payment-gateway/internal/gateway"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const gatewaysYAML = `
server:
  address: ":9090"
log_level: debug
route: [stripe, orbital]
stripe:
  enabled: true
  secret_key: sk_test_yaml
  retry_delay: 250ms
orbital:
  enabled: true
  username: user
  password: pass
  merchant_id: "041756"
circuit_breaker:
  failure_threshold: 5
  reset_timeout: 1m
`

func TestLoad_FromYAML(t *testing.T) {
	cfg, err := Load("", writeFile(t, "gateways.yaml", gatewaysYAML))
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Address)
	assert.Equal(t, "release", cfg.Server.Mode)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "sk_test_yaml", cfg.Stripe.SecretKey)
	assert.Equal(t, 250*time.Millisecond, cfg.Stripe.RetryDelay)
	assert.Equal(t, "041756", cfg.Orbital.MerchantID)
	assert.Equal(t, "001", cfg.Orbital.TerminalID)
	assert.Equal(t, "000001", cfg.Orbital.BIN)
	assert.True(t, cfg.Orbital.Test)
	assert.Equal(t, 5, cfg.CircuitBreaker.FailureThreshold)
	assert.Equal(t, time.Minute, cfg.CircuitBreaker.ResetTimeout)
	assert.Equal(t, 1, cfg.CircuitBreaker.HalfOpenSuccessThreshold)
	assert.Equal(t, []gateway.Kind{gateway.KindStripe, gateway.KindOrbital}, cfg.RouteOrder())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("PAYGW_STRIPE_SECRET_KEY", "sk_test_env")
	t.Setenv("PAYGW_SERVER_ADDRESS", ":7070")
	t.Setenv("PAYGW_CIRCUIT_BREAKER_FAILURE_THRESHOLD", "2")

	cfg, err := Load("", writeFile(t, "gateways.yaml", gatewaysYAML))
	require.NoError(t, err)
	assert.Equal(t, "sk_test_env", cfg.Stripe.SecretKey)
	assert.Equal(t, ":7070", cfg.Server.Address)
	assert.Equal(t, 2, cfg.CircuitBreaker.FailureThreshold)
}

func TestLoad_DotEnvFile(t *testing.T) {
	envFile := writeFile(t, ".env", "PAYGW_MOCK_ENABLED=true\nPAYGW_ALELO_ENABLED=true\nPAYGW_ALELO_CLIENT_ID=cid\nPAYGW_ALELO_CLIENT_SECRET=secret\n")
	t.Cleanup(func() {
		for _, k := range []string{"PAYGW_MOCK_ENABLED", "PAYGW_ALELO_ENABLED", "PAYGW_ALELO_CLIENT_ID", "PAYGW_ALELO_CLIENT_SECRET"} {
			os.Unsetenv(k)
		}
	})

	cfg, err := Load(envFile, "")
	require.NoError(t, err)
	assert.True(t, cfg.Mock.Enabled)
	assert.True(t, cfg.Alelo.Enabled)
	assert.Equal(t, "cid", cfg.Alelo.ClientID)
	assert.Equal(t, []gateway.Kind{gateway.KindAlelo, gateway.KindMock}, cfg.RouteOrder())
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing env file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.env"), "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "load env file")
	})

	t.Run("missing config file", func(t *testing.T) {
		_, err := Load("", filepath.Join(t.TempDir(), "absent.yaml"))
		require.Error(t, err)
	})

	t.Run("nothing enabled", func(t *testing.T) {
		_, err := Load("", writeFile(t, "gateways.yaml", "log_level: info\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no gateway is enabled")
	})

	t.Run("unknown gateway in route", func(t *testing.T) {
		_, err := Load("", writeFile(t, "gateways.yaml", "mock:\n  enabled: true\nroute: [paypal]\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), `unknown gateway "paypal"`)
	})

	t.Run("route names a disabled gateway", func(t *testing.T) {
		_, err := Load("", writeFile(t, "gateways.yaml", "mock:\n  enabled: true\nroute: [stripe]\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "route names stripe but it is not enabled")
	})
}

func TestBuildAdapters(t *testing.T) {
	cfg, err := Load("", writeFile(t, "gateways.yaml", gatewaysYAML+"mock:\n  enabled: true\n"))
	require.NoError(t, err)

	adapters, err := cfg.BuildAdapters(zap.NewNop())
	require.NoError(t, err)
	require.Len(t, adapters, 3)
	assert.Equal(t, gateway.KindStripe, adapters[0].Kind())
	assert.Equal(t, gateway.KindOrbital, adapters[1].Kind())
	assert.Equal(t, gateway.KindMock, adapters[2].Kind())
}

func TestBuildAdapters_MissingCredential(t *testing.T) {
	cfg := &Config{Orbital: OrbitalConfig{Enabled: true, Username: "user"}}

	_, err := cfg.BuildAdapters(nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, gateway.ErrMissingCredential)
	assert.Contains(t, err.Error(), "build orbital adapter")
}

func TestBreakerConfig(t *testing.T) {
	cfg := &Config{CircuitBreaker: CircuitBreakerConfig{FailureThreshold: 4, ResetTimeout: time.Second, HalfOpenSuccessThreshold: 2}}
	bc := cfg.BreakerConfig()
	assert.Equal(t, 4, bc.FailureThreshold)
	assert.Equal(t, time.Second, bc.ResetTimeout)
	assert.Equal(t, 2, bc.HalfOpenSuccessThreshold)
}
