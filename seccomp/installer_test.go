package seccomp

import (
	"testing"

	"github.com/xyproto/elfload/registry"
)

func TestInstallNoopWhenAlreadyInstalled(t *testing.T) {
	ctx := registry.New()
	ctx.MarkSeccompInstalled()

	// Install must short-circuit before touching prctl(2) at all once the
	// registry already reports the filter installed, since a second
	// installation attempt in the same process is not idempotent at the
	// kernel level (each SECCOMP_MODE_FILTER install stacks another filter).
	if err := Install(ctx); err != nil {
		t.Fatalf("Install on an already-installed context returned an error: %v", err)
	}
}
