// Package build holds values set at link time.
package build

// Version of gateway. Set to tag in CI during release.
var Version = "0.0.0"
