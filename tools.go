//go:build tools
// +build tools

// Package tools pins the code generators invoked by go:generate (mockgen for mocks/).
package tchat

import (
	_ "go.uber.org/mock/mockgen"
)
