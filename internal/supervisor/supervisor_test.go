// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package supervisor

import (
	"os"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// orderedWorker blocks until halt closes, then records its name in a
// shared, mutex-protected slice so shutdown ordering can be asserted.
type orderedWorker struct {
	name    string
	mu      *sync.Mutex
	stopped *[]string
}

func (w orderedWorker) Run(halt <-chan struct{}) error {
	<-halt
	w.mu.Lock()
	*w.stopped = append(*w.stopped, w.name)
	w.mu.Unlock()
	return nil
}

func TestShutdownHaltsWorkersInRegistrationOrder(t *testing.T) {
	s, err := New()
	require.NoError(t, err)

	var mu sync.Mutex
	var stopped []string

	s.Register("receiver", orderedWorker{"receiver", &mu, &stopped})
	s.Register("broker-listener", orderedWorker{"broker-listener", &mu, &stopped})
	s.Register("metric-sender", orderedWorker{"metric-sender", &mu, &stopped})

	done := make(chan struct{})
	go func() {
		s.Run()
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGINT))

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("supervisor did not shut down")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"receiver", "broker-listener", "metric-sender"}, stopped,
		"workers must halt in registration order so the metric sender stops last")
}

// restartingWorker fails exactly once, then blocks until halted.
type restartingWorker struct {
	runs *int
	mu   *sync.Mutex
}

func (w restartingWorker) Run(halt <-chan struct{}) error {
	w.mu.Lock()
	*w.runs++
	first := *w.runs == 1
	w.mu.Unlock()

	if first {
		return assertErr
	}
	<-halt
	return nil
}

var assertErr = assertError("simulated failure")

type assertError string

func (e assertError) Error() string { return string(e) }

func TestWorkerIsRestartedAfterExit(t *testing.T) {
	s, err := New()
	require.NoError(t, err)

	var mu sync.Mutex
	runs := 0
	s.Register("flaky", restartingWorker{&runs, &mu})

	done := make(chan struct{})
	go func() {
		s.Run()
		close(done)
	}()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return runs >= 2
	}, restartDelay+3*time.Second, 10*time.Millisecond, "worker should have been restarted after its first exit")

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGINT))
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("supervisor did not shut down")
	}
}

func TestScheduleEveryRunsPeriodicTask(t *testing.T) {
	s, err := New()
	require.NoError(t, err)

	var mu sync.Mutex
	calls := 0
	require.NoError(t, s.ScheduleEvery(20*time.Millisecond, func() {
		mu.Lock()
		calls++
		mu.Unlock()
	}))

	go s.scheduler.Start()
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls >= 2
	}, time.Second, 10*time.Millisecond)
}
