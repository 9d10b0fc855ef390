//go:build tracecore_disabled

package tracecore

// compileTimeEnabled is false when built with -tags tracecore_disabled.
// Every public constructor checks Enabled() once (spec §6) and, when
// false, returns a no-op value whose construction and Close are zero
// instructions after inlining — no Collector, no LocalStore, no id
// generation.
const compileTimeEnabled = false
