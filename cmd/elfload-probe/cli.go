package main

import (
	"fmt"
	"os"

	"github.com/xyproto/elfload/dynsec"
	"github.com/xyproto/elfload/elfclass"
	"github.com/xyproto/elfload/loader"
	"github.com/xyproto/elfload/registry"
	"github.com/xyproto/elfload/vmspace"
)

// CommandOptions mirrors the flags RunCLI acts on, kept as its own type so
// main's flag wiring and the reporting logic stay decoupled.
type CommandOptions struct {
	Verbose        bool
	WellKnownName  string
	Protect        bool
	SerializeRelro string
}

// RunCLI opens path, loads it through the loader package per opts, and
// prints a report of what was found to stdout.
func RunCLI(path string, opts CommandOptions) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	ctx := registry.New()
	if opts.Verbose {
		fmt.Fprintf(os.Stderr, "reading header and phdr table from %s\n", path)
	}

	r, err := loader.NewReader(ctx, path, int(f.Fd()), 0)
	if err != nil {
		return err
	}

	var view *dynsec.DynamicView
	view, err = r.ReadDynamic()
	if err != nil {
		if opts.Verbose {
			fmt.Fprintf(os.Stderr, "no usable dynamic section: %v\n", err)
		}
		view = nil
	} else {
		defer view.Release()
	}

	policy := vmspace.ReservationPolicy{Kind: vmspace.None}
	if opts.WellKnownName != "" {
		policy = vmspace.ReservationPolicy{Kind: vmspace.WellKnownName, Name: opts.WellKnownName}
		if opts.Verbose {
			fmt.Fprintf(os.Stderr, "reserving as well-known library %q\n", opts.WellKnownName)
		}
	}

	img, err := r.Load(policy)
	if err != nil {
		return err
	}

	if opts.Protect {
		if err := img.ProtectSegments(); err != nil {
			return fmt.Errorf("protect segments: %w", err)
		}
		if err := img.ProtectRelro(); err != nil {
			return fmt.Errorf("protect relro: %w", err)
		}
	}

	if opts.SerializeRelro != "" {
		sf, err := os.Create(opts.SerializeRelro)
		if err != nil {
			return fmt.Errorf("create relro side file: %w", err)
		}
		defer sf.Close()
		if err := img.SerializeRelro(int(sf.Fd())); err != nil {
			return fmt.Errorf("serialize relro: %w", err)
		}
	}

	printReport(path, img, view)
	return nil
}

func printReport(path string, img *loader.Image, view *dynsec.DynamicView) {
	fmt.Printf("%s\n", path)
	fmt.Printf("  class:   %s\n", img.Header.Class)
	fmt.Printf("  machine: 0x%x\n", img.Header.Machine)
	fmt.Printf("  entry:   0x%x\n", img.Header.Entry)
	fmt.Printf("  bias:    0x%x\n", img.Bias)

	fmt.Printf("  segments:\n")
	for _, seg := range img.Phdrs.Loadable() {
		fmt.Printf("    vaddr=0x%-10x memsz=0x%-8x flags=%s\n", seg.Vaddr, seg.Memsz, flagString(seg.Flags))
	}

	if relro := img.Phdrs.FindAll(elfclass.PT_GNU_RELRO); len(relro) > 0 {
		fmt.Printf("  relro:\n")
		for _, seg := range relro {
			fmt.Printf("    vaddr=0x%-10x memsz=0x%x\n", seg.Vaddr, seg.Memsz)
		}
	}

	if ptr, flags, ok := img.DynamicSection(); ok {
		fmt.Printf("  dynamic: addr=0x%x flags=%s\n", ptr, flagString(flags))
	}

	if view != nil {
		fmt.Printf("  needed:\n")
		for _, tag := range view.Tags {
			if tag.Tag == elfclass.DT_NEEDED {
				fmt.Printf("    %s\n", view.GetString(uint32(tag.Val)))
			}
		}
	}

	if ptr, count, ok := img.ARMExidx(); ok {
		fmt.Printf("  arm exidx: addr=0x%x entries=%d\n", ptr, count)
	}
}

func flagString(flags uint32) string {
	out := [3]byte{'-', '-', '-'}
	if flags&elfclass.PF_R != 0 {
		out[0] = 'r'
	}
	if flags&elfclass.PF_W != 0 {
		out[1] = 'w'
	}
	if flags&elfclass.PF_X != 0 {
		out[2] = 'x'
	}
	return string(out[:])
}
