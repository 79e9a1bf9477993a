package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/mer-coder/curve-convert/pkg/curve"
	"github.com/mer-coder/curve-convert/pkg/helpers"
)

// EnvPrefix 环境变量前缀, 例如 CURVE_RPC_URL, CURVE_CONTRACTS_MARKET_MAKER
const EnvPrefix = "CURVE"

// Config 程序配置
type Config struct {
	RPCURL     string          `mapstructure:"rpc_url"`
	PrivateKey string          `mapstructure:"private_key"`
	Contracts  ContractsConfig `mapstructure:"contracts"`
	Tokens     TokensConfig    `mapstructure:"tokens"`
	Tx         TxConfig        `mapstructure:"tx"`
	Batch      BatchConfig     `mapstructure:"batch"`
	UI         UIConfig        `mapstructure:"ui"`
	Log        LogConfig       `mapstructure:"log"`
	Metrics    MetricsConfig   `mapstructure:"metrics"`
}

// ContractsConfig 合约地址
type ContractsConfig struct {
	CollateralToken string `mapstructure:"collateral_token"`
	BondedToken     string `mapstructure:"bonded_token"`
	Controller      string `mapstructure:"controller"`
	MarketMaker     string `mapstructure:"market_maker"`
	// Spender 为空时使用 market_maker
	Spender string `mapstructure:"spender"`
}

// TokensConfig 代币精度和展示符号
type TokensConfig struct {
	CollateralDecimals int32  `mapstructure:"collateral_decimals"`
	BondedDecimals     int32  `mapstructure:"bonded_decimals"`
	CollateralSymbol   string `mapstructure:"collateral_symbol"`
	BondedSymbol       string `mapstructure:"bonded_symbol"`
}

type TxConfig struct {
	GasLimit            uint64        `mapstructure:"gas_limit"`
	ReceiptPollInterval time.Duration `mapstructure:"receipt_poll_interval"`
	ReceiptTimeout      time.Duration `mapstructure:"receipt_timeout"`
}

type BatchConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

type UIConfig struct {
	// PlanRevealDelay 计划构建完成后到展示之间的停顿
	PlanRevealDelay time.Duration `mapstructure:"plan_reveal_delay"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type MetricsConfig struct {
	// Addr 为空时不启动 /metrics
	Addr string `mapstructure:"addr"`
}

// Default 返回默认配置
func Default() *Config {
	return &Config{
		Tokens: TokensConfig{
			CollateralDecimals: 18,
			BondedDecimals:     18,
			CollateralSymbol:   "COLLATERAL",
			BondedSymbol:       "BONDED",
		},
		Tx: TxConfig{
			GasLimit:            helpers.DefaultGasLimit,
			ReceiptPollInterval: helpers.DefaultPollInterval,
			ReceiptTimeout:      5 * time.Minute,
		},
		Batch: BatchConfig{
			PollInterval: 5 * time.Second,
		},
		UI: UIConfig{
			PlanRevealDelay: 900 * time.Millisecond,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// SetDefaults 把默认配置写入 viper 实例
func SetDefaults(v *viper.Viper) {
	defaults := Default()

	v.SetDefault("rpc_url", "")
	v.SetDefault("private_key", "")

	v.SetDefault("contracts.collateral_token", "")
	v.SetDefault("contracts.bonded_token", "")
	v.SetDefault("contracts.controller", "")
	v.SetDefault("contracts.market_maker", "")
	v.SetDefault("contracts.spender", "")

	v.SetDefault("tokens.collateral_decimals", defaults.Tokens.CollateralDecimals)
	v.SetDefault("tokens.bonded_decimals", defaults.Tokens.BondedDecimals)
	v.SetDefault("tokens.collateral_symbol", defaults.Tokens.CollateralSymbol)
	v.SetDefault("tokens.bonded_symbol", defaults.Tokens.BondedSymbol)

	v.SetDefault("tx.gas_limit", defaults.Tx.GasLimit)
	v.SetDefault("tx.receipt_poll_interval", defaults.Tx.ReceiptPollInterval)
	v.SetDefault("tx.receipt_timeout", defaults.Tx.ReceiptTimeout)

	v.SetDefault("batch.poll_interval", defaults.Batch.PollInterval)
	v.SetDefault("ui.plan_reveal_delay", defaults.UI.PlanRevealDelay)

	v.SetDefault("log.level", defaults.Log.Level)
	v.SetDefault("log.development", defaults.Log.Development)

	v.SetDefault("metrics.addr", defaults.Metrics.Addr)
}

// Load 读取配置. 顺序: 默认值 < 配置文件 < .env / 环境变量.
// path 为空时只使用默认值和环境变量.
func Load(path string) (*Config, error) {
	// .env 不存在时直接使用系统环境变量
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("读取.env失败: %w", err)
	}

	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	return cfg, nil
}

// ValidateChain 检查连接节点和发送交易需要的配置
func (c *Config) ValidateChain() error {
	if c.RPCURL == "" {
		return errors.New("缺少 rpc_url")
	}
	if c.PrivateKey == "" {
		return errors.New("缺少 private_key")
	}

	required := map[string]string{
		"contracts.collateral_token": c.Contracts.CollateralToken,
		"contracts.bonded_token":     c.Contracts.BondedToken,
		"contracts.controller":       c.Contracts.Controller,
		"contracts.market_maker":     c.Contracts.MarketMaker,
	}
	for key, addr := range required {
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("%s 不是有效地址: %q", key, addr)
		}
	}
	if c.Contracts.Spender != "" && !common.IsHexAddress(c.Contracts.Spender) {
		return fmt.Errorf("contracts.spender 不是有效地址: %q", c.Contracts.Spender)
	}

	if c.Tokens.CollateralDecimals < 0 || c.Tokens.BondedDecimals < 0 {
		return errors.New("代币精度不能为负")
	}
	return nil
}

// Decimals 返回指定一侧代币的精度
func (c *Config) Decimals(bonded bool) int32 {
	if bonded {
		return c.Tokens.BondedDecimals
	}
	return c.Tokens.CollateralDecimals
}

// Symbol 返回指定一侧代币的展示符号
func (c *Config) Symbol(bonded bool) string {
	if bonded {
		return c.Tokens.BondedSymbol
	}
	return c.Tokens.CollateralSymbol
}

// MarketConfig 转换为市商合约配置
func (c *Config) MarketConfig() curve.Config {
	addrs := curve.Addresses{
		CollateralToken: common.HexToAddress(c.Contracts.CollateralToken),
		BondedToken:     common.HexToAddress(c.Contracts.BondedToken),
		Controller:      common.HexToAddress(c.Contracts.Controller),
		MarketMaker:     common.HexToAddress(c.Contracts.MarketMaker),
	}
	if c.Contracts.Spender != "" {
		addrs.Spender = common.HexToAddress(c.Contracts.Spender)
	}
	return curve.Config{
		Addresses:         addrs,
		BatchPollInterval: c.Batch.PollInterval,
	}
}

// SenderOptions 转换为交易发送参数
func (c *Config) SenderOptions() helpers.SenderOptions {
	return helpers.SenderOptions{
		GasLimit:       c.Tx.GasLimit,
		PollInterval:   c.Tx.ReceiptPollInterval,
		ReceiptTimeout: c.Tx.ReceiptTimeout,
	}
}
