// Package config loads the immutable application configuration: the
// category list, file paths, timeouts and pauses. Values come from an
// optional YAML file with environment overrides; defaults mirror the
// production deployment.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/avilaton/atomo-pricewatch/pkg/scraper"
)

const (
	envPrefix         = "PRICEWATCH"
	configFileEnvName = "PRICEWATCH_CONFIG_FILE"

	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
)

type Config struct {
	LogLevel       string             `mapstructure:"log_level"`
	DBPath         string             `mapstructure:"db_path"`
	ChangeLogPath  string             `mapstructure:"change_log_path"`
	UserAgent      string             `mapstructure:"user_agent"`
	RequestTimeout time.Duration      `mapstructure:"request_timeout"`
	PageDelay      time.Duration      `mapstructure:"page_delay"`
	Categories     []scraper.Category `mapstructure:"categories"`
}

// Load reads flags, environment and the optional config file. The
// category list falls back to the built-in production set when the file
// does not provide one.
func Load() (Config, error) {
	configPath := pflag.String("config", "", "path to a YAML config file")
	pflag.Parse()

	return load(resolveConfigPath(*configPath))
}

func load(configPath string) (Config, error) {
	v := viper.New()

	v.SetDefault("log_level", "info")
	v.SetDefault("db_path", "atomo.db")
	v.SetDefault("change_log_path", "price_changes.csv")
	v.SetDefault("user_agent", defaultUserAgent)
	v.SetDefault("request_timeout", 25*time.Second)
	v.SetDefault("page_delay", time.Second)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %q: %w", configPath, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if len(cfg.Categories) == 0 {
		cfg.Categories = DefaultCategories()
	}
	return cfg, nil
}

func resolveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return os.Getenv(configFileEnvName)
}

// DefaultCategories is the production category list of the Atomo store.
func DefaultCategories() []scraper.Category {
	return []scraper.Category{
		{URLTemplate: "https://atomoconviene.com/atomo-ecommerce/mas-vendidos?page={page}", MaxPages: 33},
		{URLTemplate: "https://atomoconviene.com/atomo-ecommerce/300-carnes-y-congelados?page={page}", MaxPages: 1},
		{URLTemplate: "https://atomoconviene.com/atomo-ecommerce/833-ofertas?page={page}", MaxPages: 5},
		{URLTemplate: "https://atomoconviene.com/atomo-ecommerce/3-almacen?page={page}", MaxPages: 14},
		{URLTemplate: "https://atomoconviene.com/atomo-ecommerce/81-bebidas?page={page}", MaxPages: 5},
		{URLTemplate: "https://atomoconviene.com/atomo-ecommerce/226-lacteos-fiambres?page={page}", MaxPages: 2},
		{URLTemplate: "https://atomoconviene.com/atomo-ecommerce/473-sin-tacc?page={page}", MaxPages: 2},
		{URLTemplate: "https://atomoconviene.com/atomo-ecommerce/83-perfumeria?page={page}", MaxPages: 6},
		{URLTemplate: "https://atomoconviene.com/atomo-ecommerce/85-limpieza?page={page}", MaxPages: 4},
		{URLTemplate: "https://atomoconviene.com/atomo-ecommerce/82-mundo-bebe?page={page}", MaxPages: 1},
		{URLTemplate: "https://atomoconviene.com/atomo-ecommerce/88-mascotas?page={page}", MaxPages: 1},
		{URLTemplate: "https://atomoconviene.com/atomo-ecommerce/315-hogar-bazar?page={page}", MaxPages: 1},
		{URLTemplate: "https://atomoconviene.com/atomo-ecommerce/306-jugueteria-y-libreria?page={page}", MaxPages: 3},
	}
}
