package core

import (
	"errors"
)

var (
	ErrNotInitialized = errors.New("subsystem not initialized")
	ErrShuttingDown   = errors.New("engine is shutting down")
	ErrUnknown        = errors.New("unknown")
)
