package flow

import (
	"context"
	"fmt"
)

// Process runs one execution cycle of the subtree rooted at s.
//
//  1. Block until the gating VirtualMachine is Running; ErrAborted if it is
//     observed Aborting.
//  2. The highest-level Simul counts the cycle.
//  3. If s is placed on this process, pull every boundary input from its
//     producer and push it inward.
//  4. Run every child in insertion order, whatever the placement of s.
//  5. If s is placed on this process, pull every boundary output from the
//     inner producer and push it outward.
func (s *Simul) Process(ctx context.Context) error {
	env, err := s.admit(ctx)
	if err != nil {
		return err
	}
	if s.highest {
		s.events++
	}
	onRightNode := s.onRightNode(env)
	prof := env.profiler()
	readID, _, writeID := s.spanIDs(prof)
	if onRightNode {
		for i := 0; i < s.work.Inputs(); i++ {
			if err := forward(ctx, prof, readID, writeID, s.work.InHolder(i)); err != nil {
				return fmt.Errorf("%s: %w", s.name, err)
			}
		}
	}
	for _, c := range s.children {
		if err := c.Process(ctx); err != nil {
			return err
		}
	}
	if onRightNode {
		for i := 0; i < s.work.Outputs(); i++ {
			if err := forward(ctx, prof, readID, writeID, s.work.OutHolder(i)); err != nil {
				return fmt.Errorf("%s: %w", s.name, err)
			}
		}
	}
	return nil
}

// forward reads a boundary DataHolder from its producer and writes it to its
// consumer, each phase in its own profiler span.
func forward(ctx context.Context, prof Profiler, readID, writeID int, dh *DataHolder) error {
	prof.EnterState(readID)
	err := dh.Read(ctx)
	prof.LeaveState(readID)
	if err != nil {
		return err
	}
	prof.EnterState(writeID)
	err = dh.Write(ctx)
	prof.LeaveState(writeID)
	return err
}
