package timer

import (
	"sync"

	"github.com/fixkme/proftimer/framework/engine"
	"github.com/fixkme/proftimer/ostimer"
)

var (
	builtinModule *Module
	once          sync.Once
)

// Start initialises the process-wide module once and returns it.
func Start(hooks *engine.Hooks, backend ostimer.Backend) *Module {
	once.Do(func() {
		builtinModule = ModuleInit(hooks, backend)
	})
	return builtinModule
}

// Default returns the module created by Start, or nil.
func Default() *Module {
	return builtinModule
}
