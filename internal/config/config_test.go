package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Cache:    CacheConfig{Driver: "mongo", TTLSeconds: 60},
		JWT:      JWTConfig{Secret: "s3cret"},
		Ledger:   LedgerConfig{IndexURL: "https://index", Account: "EQlottery"},
		Contract: ContractConfig{RPCURL: "https://rpc", Address: "EQcontract"},
		Custody:  CustodyConfig{BaseURL: "https://custody", APIKey: "k", PrivateKeyPath: "/keys/custody.pem"},
		Lottery:  LotteryConfig{TicketPrice: 1},
	}
}

func TestLoad_DefaultsAndEnvironment(t *testing.T) {
	t.Setenv("LEDGER_ACCOUNT", "EQfromenv")
	t.Setenv("RESILIENCE_MAXRETRIES", "7")
	t.Setenv("CONTRACT_REQUESTSPERSECOND", "0.5")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "4000", cfg.Server.Port)
	assert.Equal(t, "EQfromenv", cfg.Ledger.Account)
	assert.Equal(t, 7, cfg.Resilience.MaxRetries)
	assert.Equal(t, 0.5, cfg.Contract.RequestsPerSecond)
	assert.Equal(t, 1000, cfg.Ledger.PageSize)
	assert.Equal(t, "mongo", cfg.Cache.Driver)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, validConfig().Validate())

	cfg := validConfig()
	cfg.JWT.Secret = ""
	cfg.Ledger.Account = ""
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT.Secret")
	assert.Contains(t, err.Error(), "Ledger.Account")

	cfg = validConfig()
	cfg.Cache.Driver = "memcached"
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Contract.Mnemonic = "words"
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Lottery.TicketPrice = 0
	assert.Error(t, cfg.Validate())
}
