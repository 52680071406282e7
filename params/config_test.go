package params

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/leskodex/pkg/app/core/asset"
)

func TestDefaultsConvert(t *testing.T) {
	cfg := Default()
	assert.Equal(t, uint64(1), cfg.Exchange.FeePercent)
	assert.Equal(t, uint64(1337), cfg.Exchange.ChainID)
	assert.Equal(t, ":8080", cfg.Node.APIAddr)
	assert.Len(t, cfg.Node.CORSOrigins, 2)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.False(t, cfg.P2P.Enabled)
	assert.False(t, cfg.TxGen.Enabled)
	assert.Equal(t, 500*time.Millisecond, cfg.TxGen.Interval)

	app, err := cfg.App()
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8"), app.FeeAccount)
	assert.Equal(t, uint8(18), app.Token.Decimals)
	assert.Equal(t, asset.Units(1_000_000), app.Token.Supply)
	require.Len(t, app.Genesis, 3)
	assert.Equal(t, asset.Units(10_000), app.Genesis[common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC")])
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("EXCHANGE_FEE_PERCENT", "3")
	t.Setenv("TOKEN_SYMBOL", "TST")
	t.Setenv("GENESIS_ALLOC", "0x90F79bf6EB2c4f870365E785982E1f101E93b906=2.5")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("NODE_IN_MEMORY", "true")
	t.Setenv("TXGEN_INTERVAL", "2s")

	cfg, err := LoadFromEnv(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, uint64(3), cfg.Exchange.FeePercent)
	assert.Equal(t, "TST", cfg.Token.Symbol)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Node.InMemory)
	assert.Equal(t, 2*time.Second, cfg.TxGen.Interval)

	app, err := cfg.App()
	require.NoError(t, err)
	want, _ := asset.ParseAmount("2.5", asset.Decimals)
	assert.Equal(t, want, app.Genesis[common.HexToAddress("0x90F79bf6EB2c4f870365E785982E1f101E93b906")])
}

func TestLoadFromDotEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("EXCHANGE_CHAIN_ID=31337\nP2P_ENABLED=true\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("EXCHANGE_CHAIN_ID")
		os.Unsetenv("P2P_ENABLED")
	})

	cfg, err := LoadFromEnv(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(31337), cfg.Exchange.ChainID)
	assert.True(t, cfg.P2P.Enabled)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"fee over 100":       func(c *Config) { c.Exchange.FeePercent = 101 },
		"bad fee account":    func(c *Config) { c.Exchange.FeeAccount = "nope" },
		"zero fee account":   func(c *Config) { c.Exchange.FeeAccount = common.Address{}.Hex() },
		"bad deployer":       func(c *Config) { c.Exchange.Deployer = "0x12" },
		"empty symbol":       func(c *Config) { c.Token.Symbol = "" },
		"bad supply":         func(c *Config) { c.Token.Supply = "lots" },
		"bad genesis amount": func(c *Config) { c.Genesis.Alloc = map[string]string{"0x90F79bf6EB2c4f870365E785982E1f101E93b906": "-1"} },
		"bad genesis key":    func(c *Config) { c.Genesis.Alloc = map[string]string{"bob": "1"} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}
}

func TestLoadFromEnvRejectsInvalid(t *testing.T) {
	t.Setenv("EXCHANGE_FEE_PERCENT", "250")
	_, err := LoadFromEnv(filepath.Join(t.TempDir(), "missing.env"))
	assert.ErrorIs(t, err, ErrInvalid)
}
