package config

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Load reads, normalizes and validates a lab configuration file.
// IP and CIDR fields are decoded from their string forms via
// mapstructure hooks so the rest of the code works with net types.
func Load(path string) (*Lab, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	lab := &Lab{}
	if err := v.Unmarshal(lab, viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToIPHookFunc(),
			mapstructure.StringToIPNetHookFunc(),
		))); err != nil {
		return nil, fmt.Errorf("failed to decode config %s: %w", path, err)
	}

	lab.Normalize()
	if err := lab.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return lab, nil
}
