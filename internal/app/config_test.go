package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyPlatformDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://db/shop")
	t.Setenv("PORT", "9000")
	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("STRIPE_SECRET_KEY", "sk_test_1")
	t.Setenv("NOWPAYMENTS_IPN_SECRET", "ipn")

	cfg := Config{
		Addr: "0.0.0.0:8080",
		JWT:  JWTConfig{Secret: "from-config"},
	}
	cfg.applyPlatformDefaults()

	assert.Equal(t, "postgres://db/shop", cfg.DatabaseURL)
	assert.Equal(t, "0.0.0.0:9000", cfg.Addr)
	assert.Equal(t, "from-config", cfg.JWT.Secret, "explicit config wins")
	assert.Equal(t, "sk_test_1", cfg.Card.SecretKey)
	assert.Equal(t, "ipn", cfg.Crypto.IPNSecret)
}

func TestApplyPlatformDefaults_CustomAddr(t *testing.T) {
	t.Setenv("PORT", "9000")
	cfg := Config{Addr: "127.0.0.1:7000"}
	cfg.applyPlatformDefaults()
	assert.Equal(t, "127.0.0.1:7000", cfg.Addr)
}

func TestValidate(t *testing.T) {
	cfg := Config{}
	require.ErrorContains(t, cfg.validate(), "database URL is required")

	cfg.DatabaseURL = "postgres://db/shop"
	require.ErrorContains(t, cfg.validate(), "JWT secret is required")

	cfg.JWT.Secret = "s"
	require.NoError(t, cfg.validate())
}

func TestCallbackURL(t *testing.T) {
	cfg := Config{}
	assert.Empty(t, cfg.CallbackURL())

	cfg.BaseURL = "https://shop.example.com/"
	assert.Equal(t, "https://shop.example.com/api/crypto/ipn", cfg.CallbackURL())

	cfg.Crypto.CallbackBaseURL = "https://hooks.example.com"
	assert.Equal(t, "https://hooks.example.com/api/crypto/ipn", cfg.CallbackURL())
}
