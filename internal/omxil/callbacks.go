package omxil

import (
	"log/slog"
	"sync"

	"github.com/ebitengine/purego"
)

// callbackRegistry maps a live component's native handle to the Go
// Callbacks it was opened with. OMX_CALLBACKTYPE gives the component no
// way to carry a Go closure across the cgo boundary, so the trampolines
// below look the handle up here instead, the same way the connection
// callbacks in this codebase's lineage key off a peer connection handle.
var (
	registryMu sync.RWMutex
	registry   = map[uintptr]Callbacks{}
)

func registerCallbacks(handle uintptr, cb Callbacks) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[handle] = cb
}

func unregisterCallbacks(handle uintptr) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(registry, handle)
}

func lookupCallbacks(handle uintptr) (Callbacks, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	cb, ok := registry[handle]
	return cb, ok
}

// safeCallback runs fn and recovers any panic, logging it instead of
// letting it cross back into the component's calling thread. A panic
// unwinding through a cgo callback boundary takes the whole process down.
func safeCallback(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("omxil: recovered panic in callback", "callback", name, "panic", r)
		}
	}()
	fn()
}

// trampolines holds the three purego.NewCallback-produced function
// pointers OMX_GetHandle is given as its OMX_CALLBACKTYPE. They're created
// once, on the first GetHandle, and shared by every component, since the dispatch
// inside each one re-resolves the handle from its first argument.
type trampolines struct {
	eventHandler    uintptr
	emptyBufferDone uintptr
	fillBufferDone  uintptr
}

var trampolinesOnce sync.Once
var tramps trampolines

func ensureTrampolines() trampolines {
	trampolinesOnce.Do(func() {
		tramps.eventHandler = purego.NewCallback(func(hComponent uintptr, appData uintptr, eEvent int32, nData1, nData2 uint32, pEventData uintptr) int32 {
			safeCallback("EventHandler", func() {
				cb, ok := lookupCallbacks(hComponent)
				if !ok || cb.EventHandler == nil {
					return
				}
				cb.EventHandler(EventType(eEvent), nData1, nData2)
			})
			return 0
		})

		tramps.emptyBufferDone = purego.NewCallback(func(hComponent uintptr, appData uintptr, pBufferHdr uintptr) int32 {
			safeCallback("EmptyBufferDone", func() {
				cb, ok := lookupCallbacks(hComponent)
				if !ok || cb.EmptyBufferDone == nil {
					return
				}
				header := headerFromNative(hComponent, pBufferHdr)
				cb.EmptyBufferDone(header)
			})
			return 0
		})

		tramps.fillBufferDone = purego.NewCallback(func(hComponent uintptr, appData uintptr, pBufferHdr uintptr) int32 {
			safeCallback("FillBufferDone", func() {
				cb, ok := lookupCallbacks(hComponent)
				if !ok || cb.FillBufferDone == nil {
					return
				}
				header := headerFromNative(hComponent, pBufferHdr)
				cb.FillBufferDone(header)
			})
			return 0
		})
	})
	return tramps
}
