// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package metrics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/dfo-meds/erddaputil/pkg/log"
	"golang.org/x/time/rate"
)

// Sender is the producer/consumer side of the Metric Sender (spec
// §4.7): a bounded queue drained by one worker that batches samples
// and POSTs them to a remote sink with HTTP basic credentials.
type Sender struct {
	SinkURL     string
	Username    string
	Password    string
	BatchSize   int
	BatchWait   time.Duration
	MaxRetries  int
	RetryDelay  time.Duration
	MaxInFlight int

	queue    chan Sample
	halted   chan struct{}
	haltOnce sync.Once
	limiter  *rate.Limiter
	client   *http.Client
	dropped  int
}

// NewSender builds a Sender with a queue of the given capacity.
func NewSender(queueSize int) *Sender {
	return &Sender{
		queue:   make(chan Sample, queueSize),
		halted:  make(chan struct{}),
		limiter: rate.NewLimiter(rate.Limit(50), 50),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Enqueue submits a sample for delivery. It never blocks: if the
// queue is full it drops the sample and counts it, logging a warning
// — per spec §4.7, "never blocks indefinitely; drops with a counted
// warning when the queue is full during shutdown".
func (s *Sender) Enqueue(sample Sample) {
	select {
	case s.queue <- sample:
	default:
		s.dropped++
		log.Warnf("metric sender: queue full, dropping sample for %s (total dropped: %d)", sample.MetricName, s.dropped)
	}
}

// Dropped reports how many samples have been dropped due to a full queue.
func (s *Sender) Dropped() int { return s.dropped }

// Run drains the queue until halt is closed, batching up to
// BatchSize samples with up to BatchWait between partial fills, and
// sending at most MaxInFlight batches concurrently.
func (s *Sender) Run(halt <-chan struct{}) {
	inFlight := make(chan struct{}, maxInt(s.MaxInFlight, 1))
	var wg sync.WaitGroup

	batch := make([]Sample, 0, maxInt(s.BatchSize, 1))
	timer := time.NewTimer(s.batchWait())
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		toSend := make([]Sample, len(batch))
		copy(toSend, batch)
		batch = batch[:0]

		inFlight <- struct{}{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-inFlight }()
			s.send(toSend, halt)
		}()
	}

	for {
		select {
		case <-halt:
			s.haltOnce.Do(func() { close(s.halted) })
			drainDeadline := time.After(500 * time.Millisecond)
		drain:
			for {
				select {
				case sample := <-s.queue:
					batch = append(batch, sample)
					if len(batch) >= maxInt(s.BatchSize, 1) {
						flush()
					}
				case <-drainDeadline:
					break drain
				default:
					break drain
				}
			}
			flush()
			wg.Wait()
			return
		case sample := <-s.queue:
			batch = append(batch, sample)
			if len(batch) >= maxInt(s.BatchSize, 1) {
				flush()
				timer.Reset(s.batchWait())
			}
		case <-timer.C:
			flush()
			timer.Reset(s.batchWait())
		}
	}
}

func (s *Sender) batchWait() time.Duration {
	if s.BatchWait <= 0 {
		return time.Second
	}
	return s.BatchWait
}

// send POSTs one batch, retrying up to MaxRetries times with
// RetryDelay backoff. Once halt is closed, retries are reduced to one
// (spec §5: "on halt reduces retries to one").
func (s *Sender) send(batch []Sample, halt <-chan struct{}) {
	body, err := json.Marshal(PushBody{Metrics: batch})
	if err != nil {
		log.Errorf("metric sender: marshal batch: %v", err)
		return
	}

	maxRetries := maxInt(s.MaxRetries, 0)
	select {
	case <-halt:
		maxRetries = minInt(maxRetries, 1)
	default:
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(s.retryDelay())
		}
		if err := s.limiter.Wait(context.Background()); err != nil {
			log.Warnf("metric sender: rate limiter wait: %v", err)
		}
		if lastErr = s.post(body); lastErr == nil {
			return
		}
		log.Warnf("metric sender: push attempt %d/%d failed: %v", attempt+1, maxRetries+1, lastErr)
	}
	log.Errorf("metric sender: giving up on batch of %d samples: %v", len(batch), lastErr)
}

func (s *Sender) post(body []byte) error {
	req, err := http.NewRequest(http.MethodPost, s.SinkURL+"/push", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(s.Username, s.Password)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("push sink returned status %d", resp.StatusCode)
	}

	var pr PushResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err == nil && !pr.Success {
		return fmt.Errorf("push sink reported errors: %v", pr.Errors)
	}
	return nil
}

func (s *Sender) retryDelay() time.Duration {
	if s.RetryDelay <= 0 {
		return time.Second
	}
	return s.RetryDelay
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
