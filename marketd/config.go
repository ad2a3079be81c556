package main

import (
	"crypto/ecdsa"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	log "github.com/inconshreveable/log15"
	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/cloudx-io/nftmarket/core"
	"github.com/cloudx-io/nftmarket/ledger"
)

const (
	configKey             = "config"
	listenKey             = "listen"
	maxWorkersKey         = "max-workers"
	ownerKey              = "owner"
	marketAddressKey      = "market-address"
	platformFeeBpsKey     = "platform-fee-bps"
	receiptSignerKey      = "receipt-signer"
	receiptKeyFileKey     = "receipt-key-file"
	nativeUSDPriceKey     = "native-usd-price"
	tokenUSDPriceKey      = "token-usd-price"
	priceMaxAgeKey        = "price-max-age"
	devFaucetKey          = "dev-faucet"
	devClockKey           = "dev-clock"
	devAccountsKey        = "dev-accounts"
	accountsFileKey       = "accounts-file"
	deploymentFileKey     = "deployment-file"
	networkKey            = "network"
	logLevelKey           = "log-level"
	logFormatKey          = "log-format"
	tokenInitialSupplyKey = "token-initial-supply"
	nftBaseURIKey         = "nft-base-uri"
	versionKey            = "version"

	envPrefix = "MARKET"
)

// Receipt signer modes.
const (
	signerLocal = "local"
	signerNSM   = "nsm"
	signerNone  = "none"
)

func buildFlagSet() *flag.FlagSet {
	fs := flag.NewFlagSet("marketd", flag.ContinueOnError)

	fs.String(configKey, "", "Optional config file (yaml, json or toml)")
	fs.String(listenKey, "tcp:127.0.0.1:9650", "Listener: tcp:<host:port> or vsock:<port>")
	fs.Int(maxWorkersKey, 16, "Maximum concurrent requests; extra requests get 503")
	fs.String(ownerKey, "0xdeployer", "Deployer and market owner address")
	fs.String(marketAddressKey, "0xauctionmarket", "Ledger address of the auction market")
	fs.Uint(platformFeeBpsKey, uint(core.DefaultPlatformFeeBps), "Platform fee in basis points (max 1000)")
	fs.String(receiptSignerKey, signerLocal, "Settlement receipt signer: local, nsm or none")
	fs.String(receiptKeyFileKey, "", "PEM file for the local receipt key; generated when missing")
	fs.String(nativeUSDPriceKey, "", "Initial ETH/USD price for the native feed")
	fs.String(tokenUSDPriceKey, "", "Initial AUC/USD price for the token feed")
	fs.Duration(priceMaxAgeKey, 0, "Feed staleness limit (0 disables)")
	fs.Bool(devFaucetKey, false, "Enable ledger.Fund and ledger.SetPrice for development")
	fs.Bool(devClockKey, false, "Run on a manual clock moved by ledger.AdvanceTime")
	fs.Bool(devAccountsKey, false, "Trust the caller field of unsigned requests (development only)")
	fs.String(accountsFileKey, "", "JSON file mapping account addresses to PEM P-256 public keys for request signatures")
	fs.String(deploymentFileKey, "", "Write the deployment record to this JSON file")
	fs.String(networkKey, "localhost", "Network name recorded in deployments and receipts")
	fs.String(logLevelKey, "info", "Log level: debug, info, warn, error, crit")
	fs.String(logFormatKey, "terminal", "Log format: terminal, logfmt or json")
	fs.String(tokenInitialSupplyKey, ledger.DefaultTokenSupply.String(), "Token supply minted to the owner")
	fs.String(nftBaseURIKey, "https://api.example.com/token/", "Base URI for NFT metadata")
	fs.Bool(versionKey, false, "If true, prints the version and quits")

	return fs
}

// getViper returns the viper environment for marketd. Flags win over
// MARKET_* environment variables, which win over the config file.
func getViper(args []string) (*viper.Viper, error) {
	v := viper.New()

	fs := pflag.NewFlagSet("marketd", pflag.ContinueOnError)
	fs.AddGoFlagSet(buildFlagSet())
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if err := v.BindPFlags(fs); err != nil {
		return nil, err
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if path := v.GetString(configKey); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	return v, nil
}

// Config is the resolved node configuration.
type Config struct {
	Listen         string
	MaxWorkers     int
	Owner          core.Address
	MarketAddress  core.Address
	PlatformFeeBps uint32
	ReceiptSigner  string
	ReceiptKeyFile string
	NativeUSDPrice decimal.Decimal
	TokenUSDPrice  decimal.Decimal
	PriceMaxAge    time.Duration
	DevFaucet      bool
	DevClock       bool
	DevAccounts    bool
	AccountsFile   string
	AccountKeys    map[core.Address]*ecdsa.PublicKey
	DeploymentFile string
	Network        string
	LogLevel       log.Lvl
	LogFormat      string
	TokenSupply    decimal.Decimal
	NFTBaseURI     string
}

func loadConfig(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Listen:         v.GetString(listenKey),
		MaxWorkers:     v.GetInt(maxWorkersKey),
		Owner:          core.Address(v.GetString(ownerKey)),
		MarketAddress:  core.Address(v.GetString(marketAddressKey)),
		ReceiptSigner:  strings.ToLower(v.GetString(receiptSignerKey)),
		ReceiptKeyFile: v.GetString(receiptKeyFileKey),
		PriceMaxAge:    v.GetDuration(priceMaxAgeKey),
		DevFaucet:      v.GetBool(devFaucetKey),
		DevClock:       v.GetBool(devClockKey),
		DevAccounts:    v.GetBool(devAccountsKey),
		AccountsFile:   v.GetString(accountsFileKey),
		DeploymentFile: v.GetString(deploymentFileKey),
		Network:        v.GetString(networkKey),
		LogFormat:      v.GetString(logFormatKey),
		NFTBaseURI:     v.GetString(nftBaseURIKey),
	}

	if cfg.MaxWorkers <= 0 {
		return nil, fmt.Errorf("invalid value for %s: %d (must be positive)", maxWorkersKey, cfg.MaxWorkers)
	}
	if cfg.Owner.IsZero() {
		return nil, fmt.Errorf("%s is required", ownerKey)
	}
	if cfg.MarketAddress.IsZero() {
		return nil, fmt.Errorf("%s is required", marketAddressKey)
	}

	bps := v.GetUint32(platformFeeBpsKey)
	if err := core.ValidateFeeBps(bps); err != nil {
		return nil, fmt.Errorf("%s: %w", platformFeeBpsKey, err)
	}
	cfg.PlatformFeeBps = bps

	switch cfg.ReceiptSigner {
	case signerLocal, signerNSM, signerNone:
	default:
		return nil, fmt.Errorf("invalid value for %s: %q (want local, nsm or none)", receiptSignerKey, cfg.ReceiptSigner)
	}

	var err error
	if cfg.NativeUSDPrice, err = optionalDecimal(v, nativeUSDPriceKey); err != nil {
		return nil, err
	}
	if cfg.TokenUSDPrice, err = optionalDecimal(v, tokenUSDPriceKey); err != nil {
		return nil, err
	}
	if cfg.TokenSupply, err = optionalDecimal(v, tokenInitialSupplyKey); err != nil {
		return nil, err
	}
	if cfg.TokenSupply.IsNegative() {
		return nil, fmt.Errorf("%s must not be negative", tokenInitialSupplyKey)
	}

	if cfg.AccountsFile != "" {
		if cfg.AccountKeys, err = loadAccountKeys(cfg.AccountsFile); err != nil {
			return nil, err
		}
	}

	if cfg.LogLevel, err = log.LvlFromString(v.GetString(logLevelKey)); err != nil {
		return nil, fmt.Errorf("invalid value for %s: %w", logLevelKey, err)
	}

	return cfg, nil
}

func optionalDecimal(v *viper.Viper, key string) (decimal.Decimal, error) {
	s := strings.TrimSpace(v.GetString(key))
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid value for %s: %s (must be a decimal)", key, s)
	}
	return d, nil
}

// logHandler builds the root log15 handler for the configured level and format.
func (c *Config) logHandler(w io.Writer) log.Handler {
	var format log.Format
	switch c.LogFormat {
	case "json":
		format = log.JsonFormat()
	case "logfmt":
		format = log.LogfmtFormat()
	default:
		format = log.TerminalFormat()
	}
	return log.LvlFilterHandler(c.LogLevel, log.StreamHandler(w, format))
}
