// Package gui binds the platform's libgui/libutils C++ entry points by their
// mangled names and exposes them as the capture and display interfaces.
package gui

import "github.com/GriffinCanCode/hotpath/internal/platform"

// Library search paths.
var (
	GUIPaths   = []string{"libgui.so", "/system/lib64/libgui.so"}
	UtilsPaths = []string{"libutils.so", "/system/lib64/libutils.so"}
)

// Capability names recorded by the resolvers.
const (
	CapCreateBufferQueue = "buffer_queue.create"
	CapGLConsumerCtor    = "gl_consumer.ctor"
	CapUpdateTexImage    = "gl_consumer.update_tex_image"
	CapTransformMatrix   = "gl_consumer.transform_matrix"
	CapTimestamp         = "gl_consumer.timestamp"
	CapAbandon           = "consumer_base.abandon"
	CapSurfaceCtor       = "surface.ctor"
	CapSurfaceDtor       = "surface.dtor"
	CapTransactionCtor   = "transaction.ctor"
	CapTransactionDtor   = "transaction.dtor"
	CapDisplaySurface    = "transaction.set_display_surface"
	CapDisplayProjection = "transaction.set_display_projection"
	CapTransactionApply  = "transaction.apply"
	CapIncStrong         = "refbase.inc_strong"
	CapDecStrong         = "refbase.dec_strong"
)

var (
	createBufferQueueCandidates = []platform.Candidate{
		// (sp<IGraphicBufferProducer>*, sp<IGraphicBufferConsumer>*, bool consumerIsSurfaceFlinger)
		{Name: "_ZN7android11BufferQueue17createBufferQueueEPNS_2spINS_22IGraphicBufferProducerEEEPNS1_INS_22IGraphicBufferConsumerEEEb", Variant: platform.VariantAllocator},
		// (sp<IGraphicBufferProducer>*, sp<IGraphicBufferConsumer>*)
		{Name: "_ZN7android11BufferQueue17createBufferQueueEPNS_2spINS_22IGraphicBufferProducerEEEPNS1_INS_22IGraphicBufferConsumerEEE", Variant: platform.VariantLegacy},
	}

	glConsumerCtorCandidates = []platform.Candidate{
		// (const sp<IGraphicBufferConsumer>&, uint32_t tex, uint32_t target, bool useFenceSync, bool isControlledByApp)
		{Name: "_ZN7android10GLConsumerC1ERKNS_2spINS_22IGraphicBufferConsumerEEEjjbb", Variant: platform.VariantDefault},
		{Name: "_ZN7android10GLConsumerC2ERKNS_2spINS_22IGraphicBufferConsumerEEEjjbb", Variant: platform.VariantDefault},
	}

	updateTexImageCandidates = []platform.Candidate{
		{Name: "_ZN7android10GLConsumer14updateTexImageEv", Variant: platform.VariantDefault},
	}

	transformMatrixCandidates = []platform.Candidate{
		{Name: "_ZN7android10GLConsumer18getTransformMatrixEPf", Variant: platform.VariantDefault},
	}

	timestampCandidates = []platform.Candidate{
		{Name: "_ZN7android10GLConsumer12getTimestampEv", Variant: platform.VariantDefault},
	}

	abandonCandidates = []platform.Candidate{
		{Name: "_ZN7android12ConsumerBase7abandonEv", Variant: platform.VariantDefault},
	}

	surfaceCtorCandidates = []platform.Candidate{
		// (const sp<IGraphicBufferProducer>&, bool controlledByApp, const sp<IBinder>& surfaceControlHandle)
		{Name: "_ZN7android7SurfaceC1ERKNS_2spINS_22IGraphicBufferProducerEEEbRKNS1_INS_7IBinderEEE", Variant: platform.VariantControlHandle, MinAPI: 31},
		// (const sp<IGraphicBufferProducer>&, bool controlledByApp)
		{Name: "_ZN7android7SurfaceC1ERKNS_2spINS_22IGraphicBufferProducerEEEb", Variant: platform.VariantLegacy},
	}

	surfaceDtorCandidates = []platform.Candidate{
		{Name: "_ZN7android7SurfaceD1Ev", Variant: platform.VariantDefault},
		{Name: "_ZN7android7SurfaceD2Ev", Variant: platform.VariantDefault},
	}

	transactionCtorCandidates = []platform.Candidate{
		{Name: "_ZN7android21SurfaceComposerClient11TransactionC1Ev", Variant: platform.VariantDefault},
		{Name: "_ZN7android21SurfaceComposerClient11TransactionC2Ev", Variant: platform.VariantDefault},
	}

	transactionDtorCandidates = []platform.Candidate{
		{Name: "_ZN7android21SurfaceComposerClient11TransactionD1Ev", Variant: platform.VariantDefault},
		{Name: "_ZN7android21SurfaceComposerClient11TransactionD2Ev", Variant: platform.VariantDefault},
	}

	displaySurfaceCandidates = []platform.Candidate{
		{Name: "_ZN7android21SurfaceComposerClient11Transaction17setDisplaySurfaceERKNS_2spINS_7IBinderEEERKNS2_INS_22IGraphicBufferProducerEEE", Variant: platform.VariantDefault},
	}

	displayProjectionCandidates = []platform.Candidate{
		// (const sp<IBinder>&, ui::Rotation, const Rect& layerStackRect, const Rect& displayRect)
		{Name: "_ZN7android21SurfaceComposerClient11Transaction20setDisplayProjectionERKNS_2spINS_7IBinderEEENS_2ui8RotationERKNS_4RectESC_", Variant: platform.VariantDefault, MinAPI: 30},
		// (const sp<IBinder>&, uint32_t orientation, const Rect&, const Rect&)
		{Name: "_ZN7android21SurfaceComposerClient11Transaction20setDisplayProjectionERKNS_2spINS_7IBinderEEEjRKNS_4RectESA_", Variant: platform.VariantLegacy},
	}

	applyCandidates = []platform.Candidate{
		// apply(bool synchronous, bool oneWay)
		{Name: "_ZN7android21SurfaceComposerClient11Transaction5applyEbb", Variant: platform.VariantDefault, MinAPI: 31},
		// apply(bool synchronous)
		{Name: "_ZN7android21SurfaceComposerClient11Transaction5applyEb", Variant: platform.VariantLegacy},
	}

	incStrongCandidates = []platform.Candidate{
		{Name: "_ZNK7android7RefBase9incStrongEPKv", Variant: platform.VariantDefault},
	}

	decStrongCandidates = []platform.Candidate{
		{Name: "_ZNK7android7RefBase10decStrongEPKv", Variant: platform.VariantDefault},
	}
)

// Native object sizes. The real layouts are private and vary by release, so
// allocations are generously oversized.
const (
	spSlotSize          = 8
	rectSize            = 16
	glConsumerAllocSize = 4 << 10
	surfaceAllocSize    = 16 << 10
	transactionSize     = 8 << 10
)

// GL_TEXTURE_EXTERNAL_OES
const textureExternalOES = 0x8D65
