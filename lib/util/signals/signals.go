// Package signals dispatches process signals to registered handlers.
//
// SIGINT and SIGTERM run the interrupt handlers; SIGHUP runs the reload
// handlers. Handle must be running (usually in its own goroutine) for any
// handler to fire.
package signals

import (
	"context"
	"os"
	"os/signal"
	"sync"

	"github.com/go-i2p/logger"
)

var log = logger.GetGoI2PLogger()

// sigChan is buffered so a signal delivered while Handle is busy is kept.
var sigChan = make(chan os.Signal, 1)

// Handler is a function called when a signal is received.
type Handler func()

// HandlerID identifies a registration so it can be removed again.
type HandlerID int

type registeredHandler struct {
	id HandlerID
	fn Handler
}

var (
	mu           sync.RWMutex
	reloaders    []registeredHandler
	interrupters []registeredHandler
	nextID       HandlerID
	stopOnce     sync.Once
)

func register(list *[]registeredHandler, f Handler) HandlerID {
	if f == nil {
		return -1
	}
	mu.Lock()
	defer mu.Unlock()
	id := nextID
	nextID++
	*list = append(*list, registeredHandler{id: id, fn: f})
	return id
}

func deregister(list *[]registeredHandler, id HandlerID) {
	mu.Lock()
	defer mu.Unlock()
	for i, h := range *list {
		if h.id == id {
			*list = append((*list)[:i], (*list)[i+1:]...)
			return
		}
	}
}

// run calls every handler in registration order. A panicking handler does
// not stop the others.
func run(kind string, list []registeredHandler) {
	mu.RLock()
	snapshot := make([]registeredHandler, len(list))
	copy(snapshot, list)
	mu.RUnlock()
	for _, h := range snapshot {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.WithFields(logger.Fields{
						"at":      "signals.run",
						"handler": kind,
						"panic":   r,
					}).Error("signal handler panicked")
				}
			}()
			h.fn()
		}()
	}
}

// RegisterReloadHandler registers a handler called on SIGHUP.
// Nil handlers are ignored and return -1.
func RegisterReloadHandler(f Handler) HandlerID { return register(&reloaders, f) }

// DeregisterReloadHandler removes a reload handler.
func DeregisterReloadHandler(id HandlerID) { deregister(&reloaders, id) }

// RegisterInterruptHandler registers a handler called on SIGINT or SIGTERM.
// Nil handlers are ignored and return -1.
func RegisterInterruptHandler(f Handler) HandlerID { return register(&interrupters, f) }

// DeregisterInterruptHandler removes an interrupt handler.
func DeregisterInterruptHandler(id HandlerID) { deregister(&interrupters, id) }

func handleReload() {
	mu.RLock()
	list := reloaders
	mu.RUnlock()
	run("reload", list)
}

func handleInterrupted() {
	mu.RLock()
	list := interrupters
	mu.RUnlock()
	run("interrupt", list)
}

// NotifyContext returns a context cancelled by the next interrupt. The
// returned stop function removes the handler and releases the context.
func NotifyContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	id := RegisterInterruptHandler(func() {
		log.WithField("at", "signals.NotifyContext").Debug("interrupt received, cancelling")
		cancel()
	})
	return ctx, func() {
		DeregisterInterruptHandler(id)
		cancel()
	}
}

// StopHandle makes Handle return. Safe to call more than once.
func StopHandle() {
	stopOnce.Do(func() {
		signal.Stop(sigChan)
		close(sigChan)
	})
}
