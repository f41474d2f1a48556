// Package config carries the embedded default configuration.
package config

import _ "embed"

// Default is the embedded baseline conf.yaml. A conf.yaml next to the
// binary is merged on top of it at startup.
//
//go:embed conf.yaml
var Default []byte
