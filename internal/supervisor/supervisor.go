// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package supervisor is the bounded multi-threaded daemon supervisor
// (spec §4.6): it hosts every long-running worker, restarts one that
// exits unexpectedly, schedules periodic maintenance, and turns an
// operator's shutdown signal into an ordered, worker-by-worker halt.
package supervisor

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dfo-meds/erddaputil/pkg/log"
	"github.com/go-co-op/gocron/v2"
)

// Worker is anything the supervisor can run until halted. A Worker
// that returns before halt is closed is assumed to have failed and is
// restarted after restartDelay; one that returns only after halt is
// closed is assumed to have shut down cleanly.
type Worker interface {
	Run(halt <-chan struct{}) error
}

// WorkerFunc adapts a plain function to Worker, for components like
// *datasets.Manager and *metrics.Sender whose own Run method has no
// error return.
type WorkerFunc func(halt <-chan struct{}) error

func (f WorkerFunc) Run(halt <-chan struct{}) error { return f(halt) }

// restartDelay is how long the supervisor waits before restarting a
// worker that exited on its own.
const restartDelay = 2 * time.Second

// shutdownSignalLimit is how many consecutive shutdown signals the
// supervisor tolerates before escalating to an immediate os.Exit, for
// an operator stuck waiting on a worker that will not drain (spec
// §4.6: "three consecutive signals escalate to abrupt termination").
const shutdownSignalLimit = 3

type registeredWorker struct {
	name string
	w    Worker
	halt chan struct{}
	done chan struct{}
}

// Supervisor owns the registered workers and a gocron scheduler for
// periodic maintenance tasks (registry tidy hooks, dedup pruning)
// that don't need their own halt-channel lifecycle.
type Supervisor struct {
	workers   []*registeredWorker
	scheduler gocron.Scheduler
}

// New builds a Supervisor with its own gocron scheduler.
func New() (*Supervisor, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	return &Supervisor{scheduler: s}, nil
}

// Register adds a worker under name. Registration order is
// significant for shutdown: workers are halted in registration order,
// each awaited before the next is halted, so a worker registered last
// (by convention, the metric sender) keeps running while earlier
// workers wind down and can still report their own shutdown.
func (s *Supervisor) Register(name string, w Worker) {
	s.workers = append(s.workers, &registeredWorker{
		name: name,
		w:    w,
		halt: make(chan struct{}),
		done: make(chan struct{}),
	})
}

// ScheduleEvery registers fn to run on the given interval via the
// supervisor's gocron scheduler, for maintenance that just needs a
// ticker rather than a worker's own halt-channel lifecycle (registry
// Tidy hooks, dedup pruning).
func (s *Supervisor) ScheduleEvery(interval time.Duration, fn func()) error {
	_, err := s.scheduler.NewJob(gocron.DurationJob(interval), gocron.NewTask(fn))
	return err
}

// Run starts the scheduler and every registered worker, then blocks
// until an operator shutdown signal has been handled end to end.
func (s *Supervisor) Run() {
	s.scheduler.Start()
	for _, rw := range s.workers {
		go s.runWithRestart(rw)
	}
	s.awaitSignalAndShutdown()
}

func (s *Supervisor) runWithRestart(rw *registeredWorker) {
	defer close(rw.done)
	for {
		s.runOnce(rw)
		select {
		case <-rw.halt:
			return
		default:
			log.Warnf("supervisor: worker %q exited, restarting in %s", rw.name, restartDelay)
			time.Sleep(restartDelay)
		}
	}
}

// runOnce runs rw.w.Run to completion, converting a panic into a
// logged error instead of taking down the whole process (spec §7:
// "worker exceptions are caught at the loop boundary ... the
// supervisor never propagates exceptions; it only observes thread
// liveness and restarts").
func (s *Supervisor) runOnce(rw *registeredWorker) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("supervisor: worker %q panicked: %v", rw.name, r)
		}
	}()
	if err := rw.w.Run(rw.halt); err != nil {
		log.Errorf("supervisor: worker %q exited with error: %v", rw.name, err)
	}
}

func (s *Supervisor) awaitSignalAndShutdown() {
	sigs := make(chan os.Signal, shutdownSignalLimit)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	<-sigs
	log.Info("supervisor: shutdown signal received, halting workers in order")

	var escalateOnce sync.Once
	go func() {
		count := 1
		for range sigs {
			count++
			if count >= shutdownSignalLimit {
				escalateOnce.Do(func() {
					log.Error("supervisor: third shutdown signal received, exiting immediately")
					os.Exit(1)
				})
				return
			}
			log.Warnf("supervisor: shutdown already in progress (signal %d of %d)", count, shutdownSignalLimit)
		}
	}()

	for _, rw := range s.workers {
		close(rw.halt)
		<-rw.done
		log.Infof("supervisor: worker %q stopped", rw.name)
	}

	if err := s.scheduler.Shutdown(); err != nil {
		log.Warnf("supervisor: scheduler shutdown: %v", err)
	}
	log.Info("supervisor: shutdown complete")
}
