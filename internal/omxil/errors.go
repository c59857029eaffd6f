package omxil

import "errors"

// Sentinel errors returned by both the real and fake Component
// implementations, mirroring the teacher lineage's ffi.Err* sentinel-error
// convention so callers can use errors.Is.
var (
	ErrLibraryNotLoaded = errors.New("omxil: component library not loaded")
	ErrNoSuchRole       = errors.New("omxil: no component registered for role")
	ErrCommandFailed    = errors.New("omxil: component rejected command")
	ErrInvalidPort      = errors.New("omxil: invalid port index")
	ErrHandleNotOpen    = errors.New("omxil: component handle not open")
)
