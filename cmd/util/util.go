package util

import (
	"fmt"
	"os"
	"runtime/debug"

	log "github.com/sirupsen/logrus"
)

// friendlyError is an error whose message should be shown to the user
// as-is, without log decoration.
type friendlyError interface {
	FriendlyMessage() string
}

// HandleFatalError reports err and exits.
func HandleFatalError(err error) {
	if friendly, ok := err.(friendlyError); ok {
		fmt.Fprintln(os.Stderr, friendly.FriendlyMessage())
	} else {
		log.WithError(err).Error("Fatal error")
	}
	os.Exit(1)
}

// HandlePanic recovers from panics in long-running goroutines so that we
// can log the stack before crashing.
func HandlePanic() {
	if r := recover(); r != nil {
		log.WithField("stack", string(debug.Stack())).
			Errorf("Unexpected panic: %v", r)
		os.Exit(1)
	}
}
