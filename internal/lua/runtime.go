// Package lua runs user automation scripts against the light entities.
package lua

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"

	"github.com/dokzlo13/cyncd/internal/eventbus"
	"github.com/dokzlo13/cyncd/internal/lua/modules"
	"github.com/dokzlo13/cyncd/internal/luaexec"
)

// ErrRuntimeClosed is returned when the Lua runtime is closed
var ErrRuntimeClosed = fmt.Errorf("lua runtime closed")

// LuaWork represents work to be executed on the Lua VM
// All Lua execution MUST go through this to ensure thread safety
type LuaWork = func(ctx context.Context)

// Runtime manages the Lua VM with single-threaded execution
type Runtime struct {
	L *lua.LState

	cyncModule *modules.CyncModule

	// Work queue for thread-safe Lua execution
	workQueue chan LuaWork

	// Closing this channel signals senders to stop
	closing   chan struct{}
	closeOnce sync.Once

	// done is closed when Run returns; L is closed only after that
	runMu   sync.Mutex
	running bool
	closed  bool
	done    chan struct{}
}

// NewRuntime creates a new Lua runtime. State changes published on the bus
// are forwarded to the script's on_change handlers.
func NewRuntime(deps RuntimeDeps) *Runtime {
	r := &Runtime{
		L:         lua.NewState(),
		workQueue: make(chan LuaWork, 100),
		closing:   make(chan struct{}),
		done:      make(chan struct{}),
	}
	r.cyncModule = modules.NewCyncModule(deps.Lights, r)

	r.registerModules()

	if deps.Bus != nil {
		deps.Bus.Subscribe(eventbus.EventTypeStateChanged, r.onStateChanged)
	}
	return r
}

// Close stops accepting work and closes the Lua state once the worker has
// returned.
func (r *Runtime) Close() {
	r.closeOnce.Do(func() {
		close(r.closing)

		r.runMu.Lock()
		r.closed = true
		running := r.running
		r.runMu.Unlock()
		if running {
			<-r.done
		}
		r.cyncModule.Close()
		// workQueue stays open so late senders never panic.
		r.L.Close()
	})
}

// Do queues work to be executed on the Lua VM (thread-safe, non-blocking)
// Returns false if the runtime is closing, queue is full, or context is cancelled.
func (r *Runtime) Do(ctx context.Context, work LuaWork) bool {
	select {
	case <-r.closing:
		log.Warn().Msg("Lua runtime closing, dropping work")
		return false
	case <-ctx.Done():
		log.Warn().Msg("Context cancelled, dropping Lua work")
		return false
	case r.workQueue <- work:
		return true
	default:
		log.Warn().Msg("Lua work queue full, dropping work")
		return false
	}
}

// DoSync queues work and blocks until there's space (thread-safe, blocking)
// Returns error if the runtime is closing or context is cancelled.
func (r *Runtime) DoSync(ctx context.Context, work LuaWork) error {
	select {
	case <-r.closing:
		return ErrRuntimeClosed
	case <-ctx.Done():
		return ctx.Err()
	case r.workQueue <- work:
		return nil
	}
}

// DoSyncWithResult queues work, waits for space, and waits for the result.
func (r *Runtime) DoSyncWithResult(ctx context.Context, work func(context.Context) error) error {
	done := make(chan error, 1)
	wrappedWork := func(c context.Context) {
		done <- work(c)
	}

	select {
	case <-r.closing:
		return ErrRuntimeClosed
	case <-ctx.Done():
		return ctx.Err()
	case r.workQueue <- wrappedWork:
	}

	select {
	case <-r.closing:
		return ErrRuntimeClosed
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

// LState returns the Lua state. Only touch it from queued work.
func (r *Runtime) LState() *lua.LState {
	return r.L
}

var _ luaexec.Executor = (*Runtime)(nil)

// registerModules registers all Lua modules
func (r *Runtime) registerModules() {
	r.L.PreloadModule("log", modules.NewLogModule().Loader)
	r.L.PreloadModule("utils", modules.NewUtilsModule().Loader)
	r.L.PreloadModule("cync", r.cyncModule.Loader)
}

func (r *Runtime) onStateChanged(e eventbus.Event) {
	uid := e.UniqueID
	r.Do(context.Background(), func(ctx context.Context) {
		r.cyncModule.Dispatch(r.L, uid)
	})
}

// Run starts the Lua worker goroutine - this is the ONLY goroutine that touches Lua
// Exits when context is cancelled or runtime is closed.
func (r *Runtime) Run(ctx context.Context) {
	r.runMu.Lock()
	if r.closed || r.running {
		r.runMu.Unlock()
		return
	}
	r.running = true
	r.runMu.Unlock()
	defer close(r.done)

	for {
		select {
		case <-ctx.Done():
			r.drainQueue(ctx)
			return
		case <-r.closing:
			return
		case work := <-r.workQueue:
			r.executeWork(ctx, work)
		}
	}
}

// drainQueue processes any remaining work in the queue before exiting
func (r *Runtime) drainQueue(ctx context.Context) {
	for {
		select {
		case <-r.closing:
			return
		case work := <-r.workQueue:
			r.executeWork(ctx, work)
		default:
			return
		}
	}
}

// executeWork runs a single work item with panic recovery
func (r *Runtime) executeWork(ctx context.Context, work LuaWork) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().
				Interface("panic", rec).
				Msg("Lua work panicked - worker continuing")
		}
	}()
	// Modules read the context via L.Context()
	r.L.SetContext(ctx)
	work(ctx)
}

// LoadScript loads and executes a Lua script (must be called before Run)
func (r *Runtime) LoadScript(path string) error {
	log.Info().Str("path", path).Msg("Loading Lua script")

	if err := r.L.DoFile(path); err != nil {
		return fmt.Errorf("failed to execute Lua script: %w", err)
	}

	log.Info().Msg("Lua script loaded successfully")
	return nil
}

// LoadString executes a Lua chunk (must be called before Run)
func (r *Runtime) LoadString(source string) error {
	if err := r.L.DoString(source); err != nil {
		return fmt.Errorf("failed to execute Lua chunk: %w", err)
	}
	return nil
}
