package erp

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds the CLI configuration
type Config struct {
	ERPVPN          string
	ERPURL          string
	APIKey          string
	APISecret       string
	NginxCookie     string
	NginxCookieName string // Cookie name for reverse proxy auth (default: "auth_cookie")
	Brand           string // CLI branding shown in TUI (default: "Distributor CLI")

	LogFile     string
	LogLevel    string
	MetricsAddr string // empty disables the metrics listener

	StockDebounce time.Duration
	QtyDebounce   time.Duration
	HTTPTimeout   time.Duration
	VATRate       decimal.Decimal
}

// ConfigPaths lists where .erp-config is searched, in order.
func ConfigPaths() []string {
	return []string{
		".erp-config",
		"../.erp-config",
		filepath.Join(filepath.Dir(os.Args[0]), ".erp-config"),
		filepath.Join(filepath.Dir(os.Args[0]), "..", ".erp-config"),
	}
}

// LoadConfig reads the first .erp-config found. Environment variables override file values.
func LoadConfig() (*Config, error) {
	var configPath string
	for _, p := range ConfigPaths() {
		if _, err := os.Stat(p); err == nil {
			configPath = p
			break
		}
	}
	return LoadConfigFrom(configPath)
}

// LoadConfigFrom reads a KEY=VALUE config file. An empty path reads the environment only.
func LoadConfigFrom(path string) (*Config, error) {
	v := viper.New()
	v.SetDefault("NGINX_COOKIE_NAME", "auth_cookie")
	v.SetDefault("ERP_BRAND", "Distributor CLI")
	v.SetDefault("ERP_LOG_LEVEL", "info")
	v.SetDefault("ERP_STOCK_DEBOUNCE_MS", 500)
	v.SetDefault("ERP_QTY_DEBOUNCE_MS", 400)
	v.SetDefault("ERP_HTTP_TIMEOUT", "30s")
	v.SetDefault("ERP_VAT_RATE", "0.18")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("cannot read config %s: %w", path, err)
		}
	}

	config := &Config{
		ERPVPN:          str(v, "ERP_VPN"),
		ERPURL:          strings.TrimRight(str(v, "ERP_URL"), "/"),
		APIKey:          str(v, "ERP_API_KEY"),
		APISecret:       str(v, "ERP_API_SECRET"),
		NginxCookie:     str(v, "NGINX_COOKIE"),
		NginxCookieName: str(v, "NGINX_COOKIE_NAME"),
		Brand:           str(v, "ERP_BRAND"),
		LogFile:         str(v, "ERP_LOG_FILE"),
		LogLevel:        str(v, "ERP_LOG_LEVEL"),
		MetricsAddr:     str(v, "ERP_METRICS_ADDR"),
		StockDebounce:   time.Duration(v.GetInt("ERP_STOCK_DEBOUNCE_MS")) * time.Millisecond,
		QtyDebounce:     time.Duration(v.GetInt("ERP_QTY_DEBOUNCE_MS")) * time.Millisecond,
		HTTPTimeout:     v.GetDuration("ERP_HTTP_TIMEOUT"),
	}
	config.ERPVPN = strings.TrimRight(config.ERPVPN, "/")

	rate, err := decimal.NewFromString(str(v, "ERP_VAT_RATE"))
	if err != nil || rate.Sign() < 0 {
		return nil, fmt.Errorf("invalid ERP_VAT_RATE: %q", v.GetString("ERP_VAT_RATE"))
	}
	config.VATRate = rate

	if config.HTTPTimeout <= 0 {
		config.HTTPTimeout = 30 * time.Second
	}

	if config.ERPURL == "" || config.APIKey == "" || config.APISecret == "" {
		if path == "" {
			return nil, fmt.Errorf("config file not found. Copy .erp-config.example to .erp-config")
		}
		return nil, fmt.Errorf("missing required config: ERP_URL, ERP_API_KEY, ERP_API_SECRET")
	}

	return config, nil
}

func str(v *viper.Viper, key string) string {
	return strings.Trim(strings.TrimSpace(v.GetString(key)), "\"'")
}
