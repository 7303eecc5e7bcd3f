// Package application provides application initialization and dependency wiring.
// It initializes the process-wide plugin configuration, the settings API router
// and the HTTP server, and tears them down again, keeping the main package
// focused on CLI parsing and orchestration.
package application
