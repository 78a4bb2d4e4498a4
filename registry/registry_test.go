package registry

import "testing"

func TestSeccompInstalledDefaultsFalse(t *testing.T) {
	ctx := New()
	if ctx.SeccompInstalled() {
		t.Error("expected a fresh LoaderContext to report seccomp not installed")
	}
	ctx.MarkSeccompInstalled()
	if !ctx.SeccompInstalled() {
		t.Error("expected MarkSeccompInstalled to be visible to SeccompInstalled")
	}
}

func TestMarkSeccompInstalledIdempotent(t *testing.T) {
	ctx := New()
	ctx.MarkSeccompInstalled()
	ctx.MarkSeccompInstalled()
	if !ctx.SeccompInstalled() {
		t.Error("expected repeated MarkSeccompInstalled calls to stay installed")
	}
}

func TestSetGuestLibcAdvancesLastAddr(t *testing.T) {
	ctx := New()
	ctx.SetGuestLibc(0x1000, 0x2000)

	hint := ctx.GuestLibcHint()
	if hint.Addr != 0x1000 || hint.Size != 0x2000 {
		t.Errorf("GuestLibcHint() = %+v, want Addr=0x1000 Size=0x2000", hint)
	}

	_, end := ctx.TrustedRegion()
	if end != 0x3000 {
		t.Errorf("TrustedRegion() end = 0x%x, want 0x3000", end)
	}
}

func TestSetGuestLibcDoesNotRetreatLastAddr(t *testing.T) {
	ctx := New()
	ctx.SetGuestLibc(0x5000, 0x3000) // end = 0x8000
	ctx.SetGuestLibc(0x1000, 0x100)  // end = 0x1100, smaller

	_, end := ctx.TrustedRegion()
	if end != 0x8000 {
		t.Errorf("TrustedRegion() end = 0x%x, want 0x8000 (must not retreat)", end)
	}
}

func TestTrustedRegionStartIsPreLinker(t *testing.T) {
	ctx := New()
	ctx.PreLinker = MapEntry{Addr: 0x400000, Size: 0x1000}
	ctx.SetGuestLibc(0x500000, 0x1000)

	start, end := ctx.TrustedRegion()
	if start != 0x400000 {
		t.Errorf("TrustedRegion() start = 0x%x, want 0x400000", start)
	}
	if end != 0x501000 {
		t.Errorf("TrustedRegion() end = 0x%x, want 0x501000", end)
	}
}
