package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// 环境变量名
const (
	EnvLedgerURL     = "SCRATCH_LEDGER_URL"
	EnvLedgerToken   = "SCRATCH_LEDGER_TOKEN"
	EnvLedgerTimeout = "SCRATCH_LEDGER_TIMEOUT"
	EnvCreditRetries = "SCRATCH_CREDIT_RETRIES"

	EnvTwinAddr  = "LEDGER_TWIN_ADDR"
	EnvTwinToken = "LEDGER_TWIN_TOKEN"
	EnvTwinSeed  = "LEDGER_TWIN_SEED"
)

// 默认值
const (
	DefaultLedgerURL     = "http://127.0.0.1:8787"
	DefaultLedgerTimeout = 10 * time.Second
	DefaultCreditRetries = 3
	DefaultTwinAddr      = ":8787"
	DefaultTwinSeedCards = 6
)

// ErrInvalidEnvironmentVariable 环境变量取值无法解析
var ErrInvalidEnvironmentVariable = errors.New("invalid environment variable")

// LedgerConfig 奖励账本客户端配置
type LedgerConfig struct {
	BaseURL       string
	Token         string // Bearer token，不透明，客户端不解析
	Timeout       time.Duration
	CreditRetries int // 入账失败（网络/超时）的重试次数
}

// TwinConfig 本地账本替身服务配置
type TwinConfig struct {
	Addr      string
	Token     string // 为空时不校验 Authorization
	SeedCards int    // 启动时生成的待刮卡片数量
}

// LoadEnvFiles 加载 .env 文件，文件不存在不是错误
//
// 已经存在的环境变量不会被覆盖。
func LoadEnvFiles(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// LoadLedgerConfig 从环境变量读取账本客户端配置
func LoadLedgerConfig() (*LedgerConfig, error) {
	cfg := &LedgerConfig{
		BaseURL:       getEnv(EnvLedgerURL, DefaultLedgerURL),
		Token:         os.Getenv(EnvLedgerToken),
		Timeout:       DefaultLedgerTimeout,
		CreditRetries: DefaultCreditRetries,
	}

	var err error
	if cfg.Timeout, err = durationEnv(EnvLedgerTimeout, DefaultLedgerTimeout); err != nil {
		return nil, err
	}
	if cfg.CreditRetries, err = intEnv(EnvCreditRetries, DefaultCreditRetries); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验账本客户端配置
func (c *LedgerConfig) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: %s=%q is not an absolute URL", ErrInvalidEnvironmentVariable, EnvLedgerURL, c.BaseURL)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: %s must be positive", ErrInvalidEnvironmentVariable, EnvLedgerTimeout)
	}
	if c.CreditRetries < 0 {
		return fmt.Errorf("%w: %s must not be negative", ErrInvalidEnvironmentVariable, EnvCreditRetries)
	}
	return nil
}

// LoadTwinConfig 从环境变量读取替身服务配置
func LoadTwinConfig() (*TwinConfig, error) {
	seed, err := intEnv(EnvTwinSeed, DefaultTwinSeedCards)
	if err != nil {
		return nil, err
	}
	if seed < 0 {
		return nil, fmt.Errorf("%w: %s must not be negative", ErrInvalidEnvironmentVariable, EnvTwinSeed)
	}
	return &TwinConfig{
		Addr:      getEnv(EnvTwinAddr, DefaultTwinAddr),
		Token:     os.Getenv(EnvTwinToken),
		SeedCards: seed,
	}, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q: %v", ErrInvalidEnvironmentVariable, key, v, err)
	}
	return d, nil
}

func intEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q: %v", ErrInvalidEnvironmentVariable, key, v, err)
	}
	return n, nil
}
