package vmspace

import (
	"testing"

	"github.com/xyproto/elfload/elfclass"
	"github.com/xyproto/elfload/registry"
)

func TestReserveNonePicksKernelAddress(t *testing.T) {
	layout := Layout{Start: 0, End: elfclass.PageSize, Size: elfclass.PageSize}
	ctx := registry.New()

	r, err := Reserve("fixture.so", ctx, layout, ReservationPolicy{Kind: None})
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	defer r.Release()

	if r.Base == 0 {
		t.Error("expected a nonzero kernel-chosen base address")
	}
	if r.Size != layout.Size {
		t.Errorf("Size = 0x%x, want 0x%x", r.Size, layout.Size)
	}
	if r.Bias != int64(r.Base)-int64(layout.Start) {
		t.Errorf("Bias = %d, want %d", r.Bias, int64(r.Base)-int64(layout.Start))
	}
}

func TestReserveFixedTooSmall(t *testing.T) {
	layout := Layout{Start: 0, End: 2 * elfclass.PageSize, Size: 2 * elfclass.PageSize}
	ctx := registry.New()

	_, err := Reserve("fixture.so", ctx, layout, ReservationPolicy{
		Kind: Fixed, Addr: 0x20000000, Size: elfclass.PageSize, // smaller than layout.Size
	})
	if err == nil {
		t.Fatal("expected ReservationTooSmall when the fixed policy's size is less than the layout's")
	}
}

func TestReserveHintFallsBackWhenOccupied(t *testing.T) {
	layout := Layout{Start: 0, End: elfclass.PageSize, Size: elfclass.PageSize}
	ctx := registry.New()

	// First reservation claims a kernel-chosen address...
	first, err := Reserve("a.so", ctx, layout, ReservationPolicy{Kind: None})
	if err != nil {
		t.Fatalf("Reserve (first): %v", err)
	}
	defer first.Release()

	// ...a second Hint reservation aimed at the same address must not fail;
	// Reserve falls back to a kernel-chosen address instead.
	second, err := Reserve("b.so", ctx, layout, ReservationPolicy{Kind: Hint, Addr: first.Base})
	if err != nil {
		t.Fatalf("Reserve (hint, occupied): %v", err)
	}
	defer second.Release()

	if second.Base == 0 {
		t.Error("expected Reserve to still produce a valid mapping when the hinted address is occupied")
	}
}

func TestReserveWellKnownNameRequiresSubstringMatch(t *testing.T) {
	layout := Layout{Start: 0, End: elfclass.PageSize, Size: elfclass.PageSize}
	ctx := registry.New()

	// A name that does not contain "libc.so" must not fire the well-known
	// path (and therefore must not attempt to install seccomp).
	r, err := Reserve("other.so", ctx, layout, ReservationPolicy{Kind: WellKnownName, Name: "libm.so.6"})
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	defer r.Release()

	if ctx.SeccompInstalled() {
		t.Error("expected a non-matching WellKnownName policy not to install seccomp")
	}
}
