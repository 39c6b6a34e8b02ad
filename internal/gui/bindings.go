package gui

import (
	"log/slog"
	"sync"

	apperr "github.com/GriffinCanCode/hotpath/internal/errors"
	"github.com/GriffinCanCode/hotpath/internal/platform"
)

// Bindings holds the resolved libgui/libutils entry points. It implements
// capture.Native and display.Transactions.
type Bindings struct {
	gui   *platform.Resolver
	utils *platform.Resolver
	mem   *platform.Memory
	libs  []platform.Library

	loadOnce sync.Once
	loadErr  error

	createBufferQueue platform.Symbol
	glConsumerCtor    platform.Symbol
	updateTexImage    platform.Symbol
	transformMatrix   platform.Symbol
	timestamp         platform.Symbol
	abandon           platform.Symbol
	surfaceCtor       platform.Symbol
	surfaceDtor       platform.Symbol
	txCtor            platform.Symbol
	txDtor            platform.Symbol
	displaySurface    platform.Symbol
	displayProjection platform.Symbol
	apply             platform.Symbol
	incStrong         platform.Symbol
	decStrong         platform.Symbol

	mu sync.Mutex
	// surfaceProducer maps a Surface object to the sp<IGraphicBufferProducer>
	// slot it was built from; the compositor binds the producer.
	surfaceProducer map[uintptr]uintptr
}

// New creates bindings over already-opened resolvers. libs are closed by
// Close.
func New(gui, utils *platform.Resolver, mem *platform.Memory, libs ...platform.Library) *Bindings {
	return &Bindings{
		gui:             gui,
		utils:           utils,
		mem:             mem,
		libs:            libs,
		surfaceProducer: make(map[uintptr]uintptr),
	}
}

// Open loads libgui, libutils and libc from the default search paths.
func Open(apiLevel int) (*Bindings, error) {
	guiLib, err := platform.OpenFirst(GUIPaths...)
	if err != nil {
		return nil, err
	}
	utilsLib, err := platform.OpenFirst(UtilsPaths...)
	if err != nil {
		_ = guiLib.Close()
		return nil, err
	}
	libc, err := platform.OpenFirst(platform.LibcPaths...)
	if err != nil {
		_ = guiLib.Close()
		_ = utilsLib.Close()
		return nil, err
	}
	mem, err := platform.NewMemory(platform.NewResolver(libc, apiLevel))
	if err != nil {
		_ = guiLib.Close()
		_ = utilsLib.Close()
		_ = libc.Close()
		return nil, err
	}
	return New(platform.NewResolver(guiLib, apiLevel), platform.NewResolver(utilsLib, apiLevel), mem, guiLib, utilsLib, libc), nil
}

// Load resolves every entry point once. Only the queue constructor, the
// GL consumer constructor, texture update and timestamp are mandatory;
// everything else degrades a capability.
func (b *Bindings) Load() error {
	b.loadOnce.Do(func() { b.loadErr = b.load() })
	return b.loadErr
}

func (b *Bindings) load() error {
	var err error
	required := []struct {
		r    *platform.Resolver
		cap  string
		cand []platform.Candidate
		dst  *platform.Symbol
	}{
		{b.gui, CapCreateBufferQueue, createBufferQueueCandidates, &b.createBufferQueue},
		{b.gui, CapGLConsumerCtor, glConsumerCtorCandidates, &b.glConsumerCtor},
		{b.gui, CapUpdateTexImage, updateTexImageCandidates, &b.updateTexImage},
		{b.gui, CapTimestamp, timestampCandidates, &b.timestamp},
		{b.utils, CapIncStrong, incStrongCandidates, &b.incStrong},
		{b.utils, CapDecStrong, decStrongCandidates, &b.decStrong},
	}
	for _, s := range required {
		if *s.dst, err = s.r.Require(s.cap, s.cand...); err != nil {
			return err
		}
	}

	optional := []struct {
		cap  string
		cand []platform.Candidate
		dst  *platform.Symbol
	}{
		{CapTransformMatrix, transformMatrixCandidates, &b.transformMatrix},
		{CapAbandon, abandonCandidates, &b.abandon},
		{CapSurfaceCtor, surfaceCtorCandidates, &b.surfaceCtor},
		{CapSurfaceDtor, surfaceDtorCandidates, &b.surfaceDtor},
		{CapTransactionCtor, transactionCtorCandidates, &b.txCtor},
		{CapTransactionDtor, transactionDtorCandidates, &b.txDtor},
		{CapDisplaySurface, displaySurfaceCandidates, &b.displaySurface},
		{CapDisplayProjection, displayProjectionCandidates, &b.displayProjection},
		{CapTransactionApply, applyCandidates, &b.apply},
	}
	for _, s := range optional {
		sym, ok := b.gui.Resolve(s.cap, s.cand...)
		if !ok {
			slog.Warn("optional platform symbol missing", "capability", s.cap, "api_level", b.gui.APILevel())
		}
		*s.dst = sym
	}

	slog.Info("gui bindings loaded",
		"api_level", b.gui.APILevel(),
		"buffer_queue", b.createBufferQueue.Variant,
		"surface", b.surfaceCtor.Variant,
		"projection", b.displayProjection.Variant,
		"apply", b.apply.Variant)
	return nil
}

// Capabilities lists every looked-up capability across both libraries.
func (b *Bindings) Capabilities() []platform.Symbol {
	return append(b.gui.Capabilities(), b.utils.Capabilities()...)
}

// CanCreateSurface reports whether both the Surface ctor and dtor resolved.
func (b *Bindings) CanCreateSurface() bool {
	return b.surfaceCtor.Valid() && b.surfaceDtor.Valid()
}

// CanTransact reports whether display transactions are available.
func (b *Bindings) CanTransact() bool {
	return b.txCtor.Valid() && b.txDtor.Valid() && b.displaySurface.Valid() &&
		b.displayProjection.Valid() && b.apply.Valid()
}

// Close releases the platform libraries.
func (b *Bindings) Close() error {
	var first error
	for _, l := range b.libs {
		if err := l.Close(); err != nil && first == nil {
			first = err
		}
	}
	b.libs = nil
	return first
}

// statusError maps an android status_t onto an AppError.
func statusError(op string, st int32) error {
	if st == statusOK {
		return nil
	}
	code := apperr.CodeInternal
	switch st {
	case statusWouldBlock:
		code = apperr.CodeUnavailable
	case statusTimedOut:
		code = apperr.CodeTimeout
	case statusBadValue:
		code = apperr.CodeInvalidArgument
	case statusNoInit:
		code = apperr.CodeNotInitialized
	}
	return apperr.Newf(code, "%s: status %d", op, st)
}

// status_t values.
const (
	statusOK          int32 = 0
	statusWouldBlock  int32 = -11
	statusNoInit      int32 = -19
	statusBadValue    int32 = -22
	statusDeadObject  int32 = -32
	statusTimedOut    int32 = -110
	noBufferAvailable int32 = 2 // IGraphicBufferConsumer::NO_BUFFER_AVAILABLE
)
