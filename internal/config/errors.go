package config

import "errors"

// ErrInvalid indicates a configuration value out of range.
var ErrInvalid = errors.New("invalid configuration")

// ErrConfigFile indicates the configuration file exists but cannot be read.
var ErrConfigFile = errors.New("cannot read config file")
