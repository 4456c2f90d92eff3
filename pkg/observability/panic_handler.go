package observability

import "runtime/debug"

// RecoverPanic recovers a panic in a background job (scheduler ticks, config
// watcher) and logs it with the stack. Call in a defer. The panic is not
// re-raised; background triggers must never take the host session down.
func RecoverPanic(logger *Logger, context string) {
	if r := recover(); r != nil {
		logger.WithField("panic", r).
			WithField("stack", string(debug.Stack())).
			WithField("context", context).
			Error("PANIC recovered")
	}
}
