package resources

import "errors"

var (
	ErrNoLoader         = errors.New("no loader registered for resource type")
	ErrFileNotFound     = errors.New("resource file not found")
	ErrNoPath           = errors.New("resource handle has no path")
	ErrTypeMismatch     = errors.New("resource type does not match handle type")
	ErrDuplicateHandle  = errors.New("handle with the same uuid already in cache")
	ErrInvalidBlueprint = errors.New("invalid resource handle JSON")
	ErrNotTopLevel      = errors.New("only top-level handles can be removed")
	ErrNilResource      = errors.New("loader returned no resource")
)
