package main

import "github.com/RusFjord/eduOS/kernel/kmain"

// main makes a dummy call to the actual kernel main entrypoint function. It
// is intentionally defined to prevent the Go compiler from optimizing away the
// real kernel code, which is only reachable from the rt0 assembly.
func main() {
	kmain.Kmain()
}
