//go:build !tracecore_disabled

package tracecore

// compileTimeEnabled is spec §6's build/runtime feature gate. Building
// without -tags tracecore_disabled keeps the core live; Enabled() still
// layers a runtime toggle (Disable/Enable) on top for tests and ops use.
const compileTimeEnabled = true
