// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016 Datadog, Inc.

package tracer

import (
	"sync"
	"time"
)

// eventScheduler is a recurring-timer facility. The agent collector uses it
// to schedule its periodic flushes.
type eventScheduler interface {
	// scheduleRecurring invokes callback once every interval, on a
	// goroutine owned by the scheduler, until the returned cancel function
	// is called. cancel blocks until a callback in flight has returned and
	// is safe to call more than once.
	scheduleRecurring(interval time.Duration, callback func()) (cancel func())
}

// tickerScheduler implements eventScheduler on a time.Ticker.
type tickerScheduler struct{}

func (tickerScheduler) scheduleRecurring(interval time.Duration, callback func()) (cancel func()) {
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				callback()
			case <-stop:
				return
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
		})
	}
}

// chanScheduler triggers the callback from a caller-supplied channel. It is
// used in tests to drive flushes deterministically.
type chanScheduler struct {
	tick <-chan time.Time
}

func (s *chanScheduler) scheduleRecurring(_ time.Duration, callback func()) (cancel func()) {
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-s.tick:
				callback()
			case <-stop:
				return
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
		})
	}
}
