package params

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/joho/godotenv"

	"github.com/uhyunpark/leskodex/pkg/app/core/asset"
	"github.com/uhyunpark/leskodex/pkg/app/core/token"
	"github.com/uhyunpark/leskodex/pkg/app/dex"
)

var ErrInvalid = errors.New("invalid config")

type Node struct {
	DataDir     string   `env:"DATA_DIR" envDefault:"data"`
	LogFile     string   `env:"LOG_FILE" envDefault:"data/node.log"`
	LogLevel    string   `env:"LOG_LEVEL" envDefault:"info"`
	APIAddr     string   `env:"API_ADDR" envDefault:":8080"`
	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000,http://localhost:3001"`
	// InMemory keeps the transaction log in memory; state is lost on exit.
	InMemory bool `env:"IN_MEMORY" envDefault:"false"`
}

type Exchange struct {
	Deployer   string `env:"DEPLOYER" envDefault:"0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"`
	FeeAccount string `env:"FEE_ACCOUNT" envDefault:"0x70997970C51812dc3A010C7d01b50e0d17dc79C8"`
	FeePercent uint64 `env:"FEE_PERCENT" envDefault:"1"`
	ChainID    uint64 `env:"CHAIN_ID" envDefault:"1337"`
}

type Token struct {
	Name   string `env:"NAME" envDefault:"ESKO"`
	Symbol string `env:"SYMBOL" envDefault:"ESKO"`
	Supply string `env:"SUPPLY" envDefault:"1000000"` // whole tokens
}

type Genesis struct {
	// Alloc maps addresses to native balances in whole units:
	// GENESIS_ALLOC=0xabc...=100,0xdef...=2.5
	Alloc map[string]string `env:"ALLOC" envSeparator:"," envKeyValSeparator:"=" envDefault:"0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266=10000,0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC=10000,0x90F79bf6EB2c4f870365E785982E1f101E93b906=10000"`
}

type Kafka struct {
	Brokers []string `env:"BROKERS" envSeparator:","` // empty disables the sink
	Topic   string   `env:"TOPIC" envDefault:"leskodex.events"`
}

type P2P struct {
	Enabled    bool     `env:"ENABLED" envDefault:"false"`
	ListenAddr string   `env:"LISTEN" envDefault:"/ip4/0.0.0.0/tcp/4001"`
	Bootstrap  []string `env:"BOOTSTRAP" envSeparator:","`
}

// TxGen drives local signed traffic through the app (development only).
type TxGen struct {
	Enabled   bool          `env:"ENABLED" envDefault:"false"`
	FunderKey string        `env:"FUNDER_KEY" envDefault:"ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"`
	Accounts  int           `env:"ACCOUNTS" envDefault:"8"`
	BatchSize int           `env:"BATCH_SIZE" envDefault:"5"`
	Interval  time.Duration `env:"INTERVAL" envDefault:"500ms"`
}

type Config struct {
	Node     Node     `envPrefix:"NODE_"`
	Exchange Exchange `envPrefix:"EXCHANGE_"`
	Token    Token    `envPrefix:"TOKEN_"`
	Genesis  Genesis  `envPrefix:"GENESIS_"`
	Kafka    Kafka    `envPrefix:"KAFKA_"`
	P2P      P2P      `envPrefix:"P2P_"`
	TxGen    TxGen    `envPrefix:"TXGEN_"`
}

// Default returns the built-in defaults, ignoring the environment.
func Default() Config {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: map[string]string{}}); err != nil {
		panic(fmt.Sprintf("params: bad defaults: %v", err))
	}
	return cfg
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) (Config, error) {
	// Try to load .env file (optional - won't fail if not exists)
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load() // loads .env from current directory
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	_, err := c.App()
	return err
}

// App converts the exchange, token and genesis sections into the app's
// deployment config.
func (c Config) App() (dex.Config, error) {
	if c.Exchange.FeePercent > 100 {
		return dex.Config{}, fmt.Errorf("%w: fee percent %d exceeds 100", ErrInvalid, c.Exchange.FeePercent)
	}
	deployer, err := address("EXCHANGE_DEPLOYER", c.Exchange.Deployer)
	if err != nil {
		return dex.Config{}, err
	}
	feeAccount, err := address("EXCHANGE_FEE_ACCOUNT", c.Exchange.FeeAccount)
	if err != nil {
		return dex.Config{}, err
	}
	if c.Token.Name == "" || c.Token.Symbol == "" {
		return dex.Config{}, fmt.Errorf("%w: token name and symbol are required", ErrInvalid)
	}
	supply, err := asset.ParseAmount(c.Token.Supply, asset.Decimals)
	if err != nil {
		return dex.Config{}, fmt.Errorf("%w: TOKEN_SUPPLY: %w", ErrInvalid, err)
	}

	alloc := make(map[common.Address]*uint256.Int, len(c.Genesis.Alloc))
	for k, v := range c.Genesis.Alloc {
		addr, err := address("GENESIS_ALLOC", k)
		if err != nil {
			return dex.Config{}, err
		}
		amt, err := asset.ParseAmount(v, asset.Decimals)
		if err != nil {
			return dex.Config{}, fmt.Errorf("%w: GENESIS_ALLOC %s: %w", ErrInvalid, k, err)
		}
		alloc[addr] = amt
	}

	return dex.Config{
		Deployer:   deployer,
		FeeAccount: feeAccount,
		FeePercent: c.Exchange.FeePercent,
		ChainID:    c.Exchange.ChainID,
		Token: token.Config{
			Name:     c.Token.Name,
			Symbol:   c.Token.Symbol,
			Decimals: uint8(asset.Decimals),
			Supply:   supply,
		},
		Genesis: alloc,
	}, nil
}

func address(field, s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: %s: invalid address %q", ErrInvalid, field, s)
	}
	a := common.HexToAddress(s)
	if a == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%w: %s: zero address", ErrInvalid, field)
	}
	return a, nil
}
