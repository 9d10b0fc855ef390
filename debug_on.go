//go:build tracecore_debug

package tracecore

// assertOrRecover is the debug-build half of spec §7's Misuse handling:
// it runs fn (which panics to describe the violated invariant) and lets
// the panic propagate, turning a Misuse event into a hard failure during
// development. Built with -tags tracecore_debug.
func assertOrRecover(fn func()) { fn() }
