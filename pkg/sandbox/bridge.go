// Package sandbox executes untrusted bulk-edit scripts against an
// isolated deep copy of the scene graph. Scripts run in a sandboxed
// zygomys environment with access to exactly two things: the copied
// graph (through the registered builtins) and the pure geometry
// functions. No filesystem, network, or store handle ever crosses the
// boundary, and only the plain-data copy comes back.
package sandbox

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	zygo "github.com/glycerine/zygomys/zygo"
	"go.uber.org/zap"

	"github.com/chazu/stax/pkg/scene"
)

// DefaultTimeout is the hard wall-clock limit for a single script run.
const DefaultTimeout = time.Second

// ErrDisabled is returned when sandbox execution has not been enabled.
var ErrDisabled = errors.New("sandbox execution is disabled")

// ExecError reports a script that threw, timed out, or produced a
// structurally invalid scene. The canonical graph is untouched in every
// case.
type ExecError struct {
	Reason string
}

func (e *ExecError) Error() string {
	return "sandbox execution failed: " + e.Reason
}

// Bridge runs scripts against scene copies. It is safe for concurrent
// use; each Execute creates a fresh sandboxed environment.
type Bridge struct {
	enabled bool
	timeout time.Duration
	logger  *zap.Logger

	mu         sync.Mutex
	generation uint64
}

// New creates a bridge. The sandbox is disabled unless enabled is set;
// a zero timeout takes DefaultTimeout.
func New(enabled bool, timeout time.Duration, logger *zap.Logger) *Bridge {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bridge{enabled: enabled, timeout: timeout, logger: logger}
}

// Enabled reports whether scripts may run.
func (b *Bridge) Enabled() bool {
	return b.enabled
}

// execResult passes a finished run through the timeout channel.
type execResult struct {
	scene *scene.Scene
	err   error
}

// Execute runs the script against a deep copy of sc and returns the
// edited copy, validated against the store invariants. On timeout the
// running environment is abandoned and its result discarded via the
// generation counter; there is nothing to roll back because the script
// never touched canonical state.
func (b *Bridge) Execute(script string, sc *scene.Scene) (*scene.Scene, error) {
	if !b.enabled {
		return nil, ErrDisabled
	}

	b.mu.Lock()
	b.generation++
	gen := b.generation
	b.mu.Unlock()

	ch := make(chan execResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- execResult{err: &ExecError{Reason: fmt.Sprintf("panic during execution: %v", r)}}
			}
		}()
		edited, err := b.run(script, sc.Clone())
		ch <- execResult{scene: edited, err: err}
	}()

	edited, err := b.waitWithTimeout(ch, gen)
	if err != nil {
		b.logger.Warn("sandbox script rejected", zap.Error(err))
		return nil, err
	}

	if verr := scene.ValidateScene(edited); verr != nil {
		err := &ExecError{Reason: "script produced invalid scene: " + verr.Error()}
		b.logger.Warn("sandbox script rejected", zap.Error(err))
		return nil, err
	}
	return edited, nil
}

// run evaluates the script against the provided copy in a fresh
// sandboxed environment.
func (b *Bridge) run(script string, sc *scene.Scene) (*scene.Scene, error) {
	// An empty script is a valid no-op edit.
	if strings.TrimSpace(script) == "" {
		return sc, nil
	}

	// Sandbox mode prevents user code from reaching the filesystem or
	// syscalls; the builtins are the only door.
	env := zygo.NewZlispSandbox()
	defer env.Stop()

	registerBuiltins(env, sc)

	if err := env.LoadString(preprocessSource(script)); err != nil {
		return nil, &ExecError{Reason: err.Error()}
	}
	if _, err := env.Run(); err != nil {
		return nil, &ExecError{Reason: err.Error()}
	}
	return sc, nil
}

// waitWithTimeout waits for a result, abandoning the run when the
// deadline passes. The generation check discards stale results from
// superseded runs when they eventually complete.
func (b *Bridge) waitWithTimeout(ch <-chan execResult, gen uint64) (*scene.Scene, error) {
	timer := time.NewTimer(b.timeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		b.mu.Lock()
		current := b.generation
		b.mu.Unlock()
		if gen != current {
			return nil, &ExecError{Reason: "execution superseded by newer request"}
		}
		return res.scene, res.err

	case <-timer.C:
		return nil, &ExecError{Reason: fmt.Sprintf("script timed out after %s", b.timeout)}
	}
}
