// Package version provides build and version information.
package version

// Version is the current application version.
const Version = "0.2.0"

// Milestones:
// 0.2.0 - Formation view, reload generations, koanf config, /metrics listener
// 0.1.0 - Initial release: orbit view with colored path and whiskers, headless summary
