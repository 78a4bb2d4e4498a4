// Command elfload-probe loads one ELF shared object through the loader
// package and reports what it found: header class/machine, every PT_LOAD
// segment's placement, RELRO ranges, and (if present) the dynamic section's
// NEEDED libraries. It exists to exercise loader end-to-end the way a real
// collaborator (a Go program acting as its own dynamic linker) would.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/xyproto/env/v2"
)

const versionString = "elfload-probe 0.1.0"

func main() {
	var (
		versionFlag    = flag.Bool("version", false, "print version information and exit")
		verboseFlag    = flag.Bool("v", env.Bool("ELFLOAD_VERBOSE"), "verbose mode (print every step as it happens)")
		wellKnownFlag  = flag.String("well-known", env.StrOrDefault("ELFLOAD_WELLKNOWN", ""), "treat the object as this well-known library name (e.g. libc.so) and install the seccomp filter on reservation")
		protectFlag    = flag.Bool("protect", true, "apply final segment protection after mapping")
		serializeRelro = flag.String("serialize-relro", "", "write RELRO contents to this file after loading")
	)
	flag.Parse()

	if *versionFlag {
		fmt.Println(versionString)
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: elfload-probe [flags] <path-to-elf.so>")
		flag.PrintDefaults()
		os.Exit(2)
	}

	if err := RunCLI(args[0], CommandOptions{
		Verbose:        *verboseFlag,
		WellKnownName:  *wellKnownFlag,
		Protect:        *protectFlag,
		SerializeRelro: *serializeRelro,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "elfload-probe: %v\n", err)
		os.Exit(1)
	}
}
