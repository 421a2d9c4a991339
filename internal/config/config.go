// Package config loads trackconv settings through viper with sensible
// defaults; a missing config file is not an error.
package config

import (
	"errors"
	"fmt"

	"github.com/spf13/viper"
)

// Load reads configuration from an optional trackconv.cfg.json in
// configDir and sets default values.
func Load(configDir string) error {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./trackconv-logs")

	viper.SetDefault("convert.duplicateFramePolicy", "reject")
	viper.SetDefault("convert.attributeTypeConflict", "error")

	viper.SetDefault("export.defaultThreshold", 0.0)

	viper.SetConfigName("trackconv.cfg.json")
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("error reading config file: %w", err)
	}
	return nil
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetFloat64 returns a float config value.
func GetFloat64(key string) float64 {
	return viper.GetFloat64(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}
