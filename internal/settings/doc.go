// Package settings implements the key-value settings handle shared between
// plugin components, along with YAML persistence that writes atomically and
// can keep a backup of the previous file.
package settings
