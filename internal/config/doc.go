// Package config loads the YAML configuration for the component manager daemon.
package config
