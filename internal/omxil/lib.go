package omxil

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/ebitengine/purego"
)

// defaultLibraryPath is the on-device install location for the Renesas
// R-Car OMX-IL core, matching the original deployment's hardcoded path.
const defaultLibraryPath = "/usr/lib/libomxr_core.so"

// libraryPathEnv overrides defaultLibraryPath when set, for development
// and test boxes that don't have the hardware component installed.
const libraryPathEnv = "OMXIL_CORE_PATH"

var (
	libMu     sync.Mutex
	libHandle uintptr
	libLoaded atomic.Bool
	lib       omxCoreFuncs
)

// omxCoreFuncs holds the handful of library-level OMX_* entry points bound
// via purego.RegisterLibFunc. Per-component commands go through the
// component handle returned by GetHandle, not through these.
type omxCoreFuncs struct {
	Init                func() int32
	Deinit              func() int32
	GetComponentsOfRole func(role string, numComponents *uint32, componentNames uintptr) int32
	GetHandle           func(handle *uintptr, componentName string, appData uintptr, callbacks uintptr) int32
	FreeHandle          func(handle uintptr) int32
}

// LoadLibrary dlopen's the OMX-IL core library and resolves the entry
// points this package needs. It is safe to call more than once; subsequent
// calls are no-ops once loaded.
func LoadLibrary() error {
	libMu.Lock()
	defer libMu.Unlock()

	if libLoaded.Load() {
		return nil
	}

	path := os.Getenv(libraryPathEnv)
	if path == "" {
		path = defaultLibraryPath
	}

	handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return fmt.Errorf("omxil: dlopen %s: %w", path, err)
	}

	purego.RegisterLibFunc(&lib.Init, handle, "OMX_Init")
	purego.RegisterLibFunc(&lib.Deinit, handle, "OMX_Deinit")
	purego.RegisterLibFunc(&lib.GetComponentsOfRole, handle, "OMX_GetComponentsOfRole")
	purego.RegisterLibFunc(&lib.GetHandle, handle, "OMX_GetHandle")
	purego.RegisterLibFunc(&lib.FreeHandle, handle, "OMX_FreeHandle")

	if rc := lib.Init(); rc != 0 {
		_ = purego.Dlclose(handle)
		return fmt.Errorf("omxil: OMX_Init failed: rc=%d", rc)
	}

	libHandle = handle
	libLoaded.Store(true)
	return nil
}

// IsLoaded reports whether LoadLibrary has successfully run.
func IsLoaded() bool {
	return libLoaded.Load()
}

// Close deinitializes and unloads the OMX-IL core library.
func Close() error {
	libMu.Lock()
	defer libMu.Unlock()

	if !libLoaded.Load() {
		return nil
	}
	lib.Deinit()
	if err := purego.Dlclose(libHandle); err != nil {
		return err
	}
	libLoaded.Store(false)
	libHandle = 0
	return nil
}
