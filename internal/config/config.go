// Package config loads the bridge configuration from config.yaml and the
// environment.
package config

import (
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	HTTPAddr string `mapstructure:"http_addr"`
	Database struct {
		URL string `mapstructure:"url"`
	} `mapstructure:"database"`
	Redis struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"redis"`
	Corolair struct {
		BaseURL string `mapstructure:"base_url"`
	} `mapstructure:"corolair"`
	Site struct {
		URL  string `mapstructure:"url"`
		Name string `mapstructure:"name"`
	} `mapstructure:"site"`
	Log struct {
		Level string `mapstructure:"level"`
		Env   string `mapstructure:"env"`
	} `mapstructure:"log"`
}

func Load() Config {
	viper.SetDefault("http_addr", ":8080")
	viper.SetDefault("corolair.base_url", "https://services.corolair.com")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.env", "dev")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	_ = viper.ReadInConfig()

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// explicit bindings
	_ = viper.BindEnv("http_addr", "BRIDGE_HTTP_ADDR")
	_ = viper.BindEnv("database.url", "DATABASE_URL")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("corolair.base_url", "COROLAIR_BASE_URL")
	_ = viper.BindEnv("site.url", "SITE_URL")
	_ = viper.BindEnv("site.name", "SITE_NAME")
	_ = viper.BindEnv("log.level", "LOG_LEVEL")
	_ = viper.BindEnv("log.env", "ENV")

	var c Config
	if err := viper.Unmarshal(&c); err != nil {
		panic("config error: " + err.Error())
	}
	if c.Database.URL == "" {
		panic("config error: database.url/DATABASE_URL required")
	}
	if c.Site.URL == "" {
		panic("config error: site.url/SITE_URL required")
	}
	return c
}
