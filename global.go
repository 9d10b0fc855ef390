package tracecore

import (
	"errors"
	"sync"
	"sync/atomic"
)

var runtimeEnabled atomic.Bool

func init() {
	runtimeEnabled.Store(true)
}

// Enabled reports whether root/local span construction should do real
// work. It combines the compile-time gate (spec §6, build tag
// tracecore_disabled) with a runtime toggle (Disable/Enable), checked
// once per root or local-span construction — never on the hot
// add-property/add-event path, matching spec §4.8 ("checked once at root
// construction").
func Enabled() bool {
	return compileTimeEnabled && runtimeEnabled.Load()
}

// Disable flips the runtime toggle off; already-open spans keep running
// to completion, but every new root/local span becomes a no-op. Has no
// effect when built with -tags tracecore_disabled (already off).
func Disable() { runtimeEnabled.Store(false) }

// Enable flips the runtime toggle back on.
func Enable() { runtimeEnabled.Store(true) }

var globalState = struct {
	once       sync.Once
	mu         sync.RWMutex
	reporter   Reporter
	dispatcher *Dispatcher
	config     Config
}{}

// SetReporter installs the process-wide Reporter and Config (spec §4.8,
// §6). Safe to call more than once — later calls replace the previous
// reporter/config and are serialized against each other and against the
// one-time Dispatcher startup, matching the teacher's single
// sync.Once-guarded initialization idiom (Tracer.ensureIDPools).
func SetReporter(reporter Reporter, cfg Config) {
	cfg = cfg.withDefaults()

	globalState.once.Do(func() {
		globalState.mu.Lock()
		globalState.dispatcher = newDispatcher(cfg)
		globalState.mu.Unlock()
	})

	globalState.mu.Lock()
	globalState.reporter = reporter
	globalState.config = cfg
	globalState.dispatcher.updateConfig(cfg, reporter)
	globalState.mu.Unlock()
}

func currentReporter() Reporter {
	globalState.mu.RLock()
	defer globalState.mu.RUnlock()
	return globalState.reporter
}

func currentConfig() Config {
	globalState.mu.RLock()
	defer globalState.mu.RUnlock()
	if globalState.config.isZero() {
		return defaultConfig()
	}
	return globalState.config
}

func currentDispatcher() *Dispatcher {
	globalState.mu.RLock()
	defer globalState.mu.RUnlock()
	return globalState.dispatcher
}

// errReporterUninitialized is surfaced only via diagnostics (spec §7
// Dropped(reporter_uninitialized)), never returned to callers.
var errReporterUninitialized = errors.New("tracecore: no reporter installed")

// Flush signals the Dispatcher to drain every sealed trace and calls the
// Reporter's Flush, then returns (spec §6, §8 "flush() twice with no
// activity between is a no-op"). Safe to call before SetReporter — it
// simply returns immediately, since there is nothing to drain.
func Flush() {
	d := currentDispatcher()
	if d == nil {
		return
	}
	d.flushSync()
	if r := currentReporter(); r != nil {
		r.Flush()
	}
}
