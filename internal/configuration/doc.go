// Package configuration provides process-wide access to the persisted plugin
// settings. The host integration calls Initialize when the plugin loads and
// Finalize when it unloads; other components reach the shared settings
// handle through Instance.
//
// The settings file records the version it was written with so the plugin
// can detect that it was upgraded or downgraded since the last run.
package configuration
