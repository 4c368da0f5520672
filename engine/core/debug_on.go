//go:build debug

package core

// DebugMode enables fatal assertions.
const DebugMode = true
