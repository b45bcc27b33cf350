package flow

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// State is a VirtualMachine state.
type State int

const (
	Idle State = iota
	Paused
	Running
	Aborting
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Paused:
		return "paused"
	case Running:
		return "running"
	case Aborting:
		return "aborting"
	default:
		return "unknown"
	}
}

// Trigger is an input of the VirtualMachine.
type Trigger int

const (
	Start Trigger = iota
	Stop
	Abort
)

func (t Trigger) String() string {
	switch t {
	case Start:
		return "start"
	case Stop:
		return "stop"
	case Abort:
		return "abort"
	default:
		return "unknown"
	}
}

// VirtualMachine is the per-process state machine gating Process.
// Aborting is terminal.
//
// Thread-safety: safe for concurrent use; triggers usually arrive from a
// Controller goroutine while the graph waits in Process.
type VirtualMachine struct {
	mu      sync.Mutex
	state   State
	changed chan struct{} // closed and replaced on every transition
}

// NewVirtualMachine returns a VirtualMachine in the Idle state.
func NewVirtualMachine() *VirtualMachine {
	return &VirtualMachine{state: Idle, changed: make(chan struct{})}
}

// State returns the current state.
func (vm *VirtualMachine) State() State {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.state
}

// Trigger applies t. Triggers received while Aborting are ignored.
func (vm *VirtualMachine) Trigger(t Trigger) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	if vm.state == Aborting {
		return
	}
	next := vm.state
	switch t {
	case Start:
		next = Running
	case Stop:
		next = Paused
	case Abort:
		next = Aborting
	}
	if next == vm.state {
		return
	}
	logrus.Debugf("VirtualMachine: %s -> %s (%s)", vm.state, next, t)
	vm.state = next
	close(vm.changed)
	vm.changed = make(chan struct{})
}

// WaitRunning blocks until the state is Running. It returns ErrAborted as
// soon as Aborting is observed and ctx.Err() if ctx ends first.
func (vm *VirtualMachine) WaitRunning(ctx context.Context) error {
	for {
		vm.mu.Lock()
		state, changed := vm.state, vm.changed
		vm.mu.Unlock()
		switch state {
		case Running:
			return nil
		case Aborting:
			return ErrAborted
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
