package gpufence

import "fmt"

// ExternalImage is the handle the coordinator hands back to a client so
// it can import a decoded picture's backing memory into its own
// rendering context. Of DMABufFD and EGLImage, only the one matching the
// platform's import path is populated; Stride, Width and Height describe
// the picture itself.
type ExternalImage struct {
	DMABufFD  int
	EGLImage  uintptr
	Stride    int
	Width     int
	Height    int
}

// Translator turns a component-owned texture or buffer reference into an
// ExternalImage a client outside this process's GPU context can import.
// The coordinator never dereferences TextureRef itself; it is opaque
// bits the component handed over in a FillBufferDone.
type Translator interface {
	Translate(textureRef uintptr, width, height int) (ExternalImage, error)
}

// nullTranslator rejects every translation. A coordinator given one
// fails with PlatformFailure as soon as AssignPictureBuffers tries to
// translate the first picture buffer.
type nullTranslator struct{}

// NewNullTranslator returns a Translator that always fails, for
// configurations that don't support zero-copy picture export.
func NewNullTranslator() Translator {
	return nullTranslator{}
}

func (nullTranslator) Translate(textureRef uintptr, width, height int) (ExternalImage, error) {
	return ExternalImage{}, fmt.Errorf("gpufence: no translator configured for texture %#x", textureRef)
}
