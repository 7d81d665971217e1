package logger

import (
	"sync"
)

// registry is the global named-logger registry.
var registry = &loggerRegistry{
	loggers: make(map[string]*Logger),
}

type loggerRegistry struct {
	mu      sync.RWMutex
	global  *Logger
	loggers map[string]*Logger
}

// Init replaces the global logger from config. Component loggers obtained
// afterwards with Get inherit it.
func Init(cfg Config) {
	cfg.ApplyDefaults()
	l := New(&cfg, "webquery")
	registry.mu.Lock()
	registry.global = l
	registry.loggers = make(map[string]*Logger)
	registry.mu.Unlock()
}

// SetGlobal sets the global logger instance.
func SetGlobal(l *Logger) {
	registry.mu.Lock()
	registry.global = l
	registry.loggers = make(map[string]*Logger)
	registry.mu.Unlock()
}

// Global returns the global logger, creating a default one if needed.
func Global() *Logger {
	registry.mu.RLock()
	l := registry.global
	registry.mu.RUnlock()
	if l != nil {
		return l
	}
	registry.mu.Lock()
	defer registry.mu.Unlock()
	if registry.global == nil {
		registry.global = NewDefault("webquery")
	}
	return registry.global
}

// Register stores a named logger in the registry.
func Register(name string, l *Logger) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.loggers[name] = l
}

// Get retrieves a named logger. If the name is not registered it returns the
// global logger tagged with the requested component name.
func Get(name string) *Logger {
	registry.mu.RLock()
	l, ok := registry.loggers[name]
	registry.mu.RUnlock()
	if ok {
		return l
	}
	return Global().WithComponent(name)
}
