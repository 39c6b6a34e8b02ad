package gui

import (
	"github.com/GriffinCanCode/hotpath/internal/display"
	apperr "github.com/GriffinCanCode/hotpath/internal/errors"
	"github.com/GriffinCanCode/hotpath/internal/platform"
)

var _ display.Transactions = (*Transactions)(nil)

// Transactions issues compositor transactions through the bindings.
type Transactions struct {
	b *Bindings
}

// Transactions returns the display transaction API.
func (b *Bindings) Transactions() *Transactions { return &Transactions{b: b} }

// Open constructs a SurfaceComposerClient::Transaction in native memory.
func (t *Transactions) Open() (platform.Handle, error) {
	if err := t.b.Load(); err != nil {
		return platform.Handle{}, err
	}
	if !t.b.CanTransact() {
		return platform.Handle{}, apperr.New(apperr.CodeSymbolMissing, "display transactions unavailable")
	}
	mem, err := t.b.mem.Alloc(transactionSize)
	if err != nil {
		return platform.Handle{}, err
	}
	t.b.txCtor.Call(mem.Addr())
	return platform.NewHandle(platform.KindTransaction, mem.Addr()), nil
}

// Close destroys and frees a transaction.
func (t *Transactions) Close(tx platform.Handle) {
	if tx.IsNil() {
		return
	}
	t.b.txDtor.Call(tx.Addr())
	t.b.mem.Free(platform.NewHandle(platform.KindMemory, tx.Addr()))
}

// SetDisplaySurface binds target's producer to the display. A nil target
// clears the binding.
func (t *Transactions) SetDisplaySurface(tx, token, target platform.Handle) error {
	slot := t.b.producerSlot(target)
	if slot == 0 {
		// const sp<IGraphicBufferProducer>& must still point at a slot.
		empty, err := t.b.mem.Alloc(spSlotSize)
		if err != nil {
			return err
		}
		defer t.b.mem.Free(empty)
		slot = empty.Addr()
	}
	st := int32(t.b.displaySurface.Call(tx.Addr(), token.Addr(), slot))
	return statusError("setDisplaySurface", st)
}

// SetDisplayProjection maps source onto dest. Both ABI variants take the
// rotation as a 32-bit integer with identical values.
func (t *Transactions) SetDisplayProjection(tx, token platform.Handle, rot display.Rotation, source, dest display.Rect) error {
	rects, err := t.b.mem.Alloc(2 * rectSize)
	if err != nil {
		return err
	}
	defer t.b.mem.Free(rects)

	raw := platform.Bytes(rects.Addr(), 2*rectSize)
	encodeRect(raw[:rectSize], source)
	encodeRect(raw[rectSize:], dest)

	t.b.displayProjection.Call(tx.Addr(), token.Addr(), uintptr(uint32(rot)), rects.Addr(), rects.Addr()+rectSize)
	return nil
}

// Apply commits the transaction synchronously.
func (t *Transactions) Apply(tx platform.Handle) error {
	var st int32
	switch t.b.apply.Variant {
	case platform.VariantLegacy:
		st = int32(t.b.apply.Call(tx.Addr(), boolArg(true)))
	default:
		st = int32(t.b.apply.Call(tx.Addr(), boolArg(true), boolArg(false)))
	}
	return statusError("apply", st)
}
