// Package config handles YAML configuration loading with environment variable substitution.
//
// Configuration files support ${VAR} syntax for environment variable interpolation.
// A .env file in the working directory or next to the config file is loaded
// first, and a small set of PRICEFEED_* variables override file values.
package config
