// SPDX-FileCopyrightText: 2025 The Ryzen Power Authors
// SPDX-License-Identifier: Apache-2.0

package monitor

import (
	"log/slog"
	"time"

	"k8s.io/utils/clock"
)

type Opts struct {
	logger   *slog.Logger
	clock    clock.Clock
	duration time.Duration
}

// DefaultOpts returns a new Opts with defaults set
func DefaultOpts() Opts {
	return Opts{
		logger:   slog.Default(),
		clock:    clock.RealClock{},
		duration: 500 * time.Millisecond,
	}
}

// OptionFn is a function that sets one or more options in the Opts struct
type OptionFn func(*Opts)

// WithLogger sets the logger for the Sampler
func WithLogger(logger *slog.Logger) OptionFn {
	return func(o *Opts) {
		o.logger = logger
	}
}

// WithClock sets the clock used for the measurement sleep and timestamps
func WithClock(c clock.Clock) OptionFn {
	return func(o *Opts) {
		o.clock = c
	}
}

// WithDuration sets the length of the measurement window
func WithDuration(d time.Duration) OptionFn {
	return func(o *Opts) {
		o.duration = d
	}
}
