package cluster

import (
	"sync"

	"github.com/cepflow/cepflow/flow"
	"github.com/sirupsen/logrus"
)

// Port is one boundary channel announced to a controller.
type Port struct {
	IsSource bool
	Channel  int
	ID       int
}

// LocalController drives a VirtualMachine from within the process.
// It satisfies flow.Controller.
//
// Thread-safety: safe for concurrent use.
type LocalController struct {
	vm *flow.VirtualMachine

	mu    sync.Mutex
	ports []Port
}

// NewLocalController returns a controller for vm. Panics if vm is nil.
func NewLocalController(vm *flow.VirtualMachine) *LocalController {
	if vm == nil {
		panic("NewLocalController: nil VirtualMachine")
	}
	return &LocalController{vm: vm}
}

func (c *LocalController) Start() { c.vm.Trigger(flow.Start) }
func (c *LocalController) Stop()  { c.vm.Trigger(flow.Stop) }
func (c *LocalController) Abort() { c.vm.Trigger(flow.Abort) }

// Connect records a boundary channel of the bound graph.
func (c *LocalController) Connect(isSource bool, channel, id int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ports = append(c.ports, Port{IsSource: isSource, Channel: channel, ID: id})
	logrus.Debugf("controller: rank %d announced channel %d (source=%v)", id, channel, isSource)
}

// Ports returns the announced channels in announcement order.
func (c *LocalController) Ports() []Port {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Port(nil), c.ports...)
}

// State returns the state of the driven VirtualMachine.
func (c *LocalController) State() flow.State { return c.vm.State() }
