package novaslab

import (
	"fmt"

	"github.com/spf13/viper"
)

// NovaSlabConfig selects the backing page source and logging verbosity.
type NovaSlabConfig struct {
	Backing struct {
		// Kind is "mmap" (platform default) or "heap".
		Kind string `mapstructure:"kind"`
		// PageSize applies to the heap source only; 0 means the OS page size.
		PageSize int `mapstructure:"page_size"`
	} `mapstructure:"backing"`
	Debug bool `mapstructure:"debug"`
}

func LoadConfig(path string) (*NovaSlabConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg NovaSlabConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}
