package flow

import (
	"errors"

	"github.com/sirupsen/logrus"
)

// Construction-time structural errors. All of them are programmer errors:
// the graph must be structurally correct before execution begins.
var (
	ErrDuplicateParent = errors.New("step already has a parent")
	ErrDuplicateName   = errors.New("duplicate step name")
	ErrInvalidName     = errors.New("invalid step name")
	ErrUnknownStep     = errors.New("unknown step")
	ErrUnknownChannel  = errors.New("unknown channel")
	ErrSameStep        = errors.New("source and target resolve to the same step")
	ErrCapacity        = errors.New("not enough boundary channels")
	ErrNotConnected    = errors.New("channel not connected")
	ErrAlreadyWired    = errors.New("channel already connected")
	ErrCycle           = errors.New("step would contain its own ancestor")
)

// ErrAborted is returned by Process when the VirtualMachine is observed in the
// Aborting state at the admission gate.
var ErrAborted = errors.New("virtual machine aborting")

// Must terminates the process with a diagnostic if err is non-nil.
// Drivers use it around construction calls to get fail-fast behavior.
func Must(err error) {
	if err != nil {
		logrus.Fatalf("graph construction failed: %v", err)
	}
}
