//go:build !tracecore_debug

package tracecore

// assertOrRecover is the release-build half of spec §7's Misuse handling:
// release builds never invoke the assertion closure at all (it exists
// purely to document the invariant in debug_on.go's build); the caller's
// unwind-and-diagnose path is the only thing that runs. Build with
// -tags tracecore_debug to get the asserting variant instead.
func assertOrRecover(func()) {}
