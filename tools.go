//go:build tools

// Package tools pins test tooling versions in go.mod.
// Run the suite with: go run gotest.tools/gotestsum ./...
package tools

import (
	_ "gotest.tools/gotestsum"
)
