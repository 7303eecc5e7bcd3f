// Package config loads runtime configuration of the streamfx companion tool
// from multiple sources (YAML files, environment variables, CLI flags) with
// precedence: CLI flags > YAML config > Environment variables > Defaults.
// It decides where the plugin settings file lives and how the HTTP surface
// behaves; the plugin settings themselves live in package configuration.
package config
