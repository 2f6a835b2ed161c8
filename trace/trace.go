/*
 * Jacobin VM - A Java virtual machine
 * Copyright (c) 2024 by  the Jacobin Authors. All rights reserved.
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)  Consult jacobin.org.
 */

// Package trace is the codec's ambient logging surface: a small set of
// leveled free functions writing to stderr, gated by a verbosity flag set
// once at process start. It deliberately does not reach for a structured
// logging library -- none of the repos this codec is grounded on do
// either, and the reader/writer have nothing worth structuring: a file
// name, a class name, a method signature, an error.
package trace

import (
	"fmt"
	"os"
	"sync"
	"time"
)

// Verbose, when true, makes Trace emit informational messages. Error and
// Warning always emit; they are already exceptional.
var Verbose bool

var mu sync.Mutex

// Init resets the package to its zero state. Tests call this between
// cases the way Jacobin's trace.Init() resets global state between tests.
func Init() {
	mu.Lock()
	defer mu.Unlock()
	Verbose = false
}

// Trace emits an informational message if Verbose is set.
func Trace(msg string) {
	if !Verbose {
		return
	}
	emit("TRACE", msg)
}

// Warning emits a warning message unconditionally.
func Warning(msg string) {
	emit("WARNING", msg)
}

// Error emits an error message unconditionally.
func Error(msg string) {
	emit("ERROR", msg)
}

func emit(level, msg string) {
	mu.Lock()
	defer mu.Unlock()
	fmt.Fprintf(os.Stderr, "[%s] %s %s\n", time.Now().Format("15:04:05.000"), level, msg)
}
