package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	values map[string]any
}

// Load reads configuration parameters from a YAML file. Use this instead
// of hard-coding constants.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	values := make(map[string]any)
	err = yaml.Unmarshal(data, &values)
	if err != nil {
		return nil, err
	}
	return &Config{values: values}, nil
}

// Empty returns a config with no parameters set; every getter falls
// through to its default.
func Empty() *Config {
	return &Config{values: make(map[string]any)}
}

// GetString returns a string-typed parameter. If nothing is found, or if
// the value cannot be parsed as a string, returns an empty value.
func (c *Config) GetString(key string) string {
	value, ok := c.values[key]
	if !ok {
		return ""
	}
	str, ok := value.(string)
	if !ok {
		return ""
	}
	return str
}

// GetStringOrDefault returns a string-typed parameter. If nothing is
// found, or if the value cannot be parsed as a string, returns
// `defaultValue`.
func (c *Config) GetStringOrDefault(key, defaultValue string) string {
	value := c.GetString(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// GetIntOrDefault returns an integer-typed parameter. If nothing is
// found, or if the value cannot be parsed as an integer, returns
// `defaultValue`.
func (c *Config) GetIntOrDefault(key string, defaultValue int) int {
	value, ok := c.values[key]
	if !ok {
		return defaultValue
	}
	intValue, ok := value.(int)
	if !ok {
		return defaultValue
	}
	return intValue
}

// GetBoolOrDefault returns a boolean-typed parameter. If nothing is
// found, or if the value cannot be parsed as a boolean, returns
// `defaultValue`.
func (c *Config) GetBoolOrDefault(key string, defaultValue bool) bool {
	value, ok := c.values[key]
	if !ok {
		return defaultValue
	}
	boolValue, ok := value.(bool)
	if !ok {
		return defaultValue
	}
	return boolValue
}
