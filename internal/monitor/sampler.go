// SPDX-FileCopyrightText: 2025 The Ryzen Power Authors
// SPDX-License-Identifier: Apache-2.0

package monitor

import (
	"fmt"
	"log/slog"
	"time"

	"k8s.io/utils/clock"

	"github.com/ryzen-power/ryzenpower/internal/device"
	"github.com/ryzen-power/ryzenpower/internal/topology"
)

// msrReader is the register access the Sampler needs
type msrReader interface {
	Read(cpu int, offset uint32) (int64, error)
}

// Sampler takes one measurement window over the monitored cores: a
// snapshot of the energy counters, a sleep, a second snapshot, and the
// power computed from the deltas. Topology and energy unit are computed
// once at startup and passed in; the Sampler never mutates them.
type Sampler struct {
	reader msrReader
	topo   *topology.Info
	unit   float64 // joules per counter tick

	duration time.Duration
	clock    clock.Clock
	logger   *slog.Logger
}

// Snapshot is the result of one measurement window, keyed by logical CPU
type Snapshot struct {
	Timestamp time.Time
	Duration  time.Duration

	CorePower    map[int]device.Power
	PackagePower map[int]device.Power
}

// NewSampler creates a Sampler over the given reader, topology and energy unit
func NewSampler(reader msrReader, topo *topology.Info, unit float64, applyOpts ...OptionFn) *Sampler {
	opts := DefaultOpts()
	for _, apply := range applyOpts {
		apply(&opts)
	}

	return &Sampler{
		reader:   reader,
		topo:     topo,
		unit:     unit,
		duration: opts.duration,
		clock:    opts.clock,
		logger:   opts.logger.With("service", "sampler"),
	}
}

// Measure runs one measurement window and returns per-core power readings.
// Any read failure aborts the window; no partial snapshot is returned.
// Counter wraparound inside the window is not corrected: a wrap produces a
// nonsensical reading, accepted given the short default window.
func (s *Sampler) Measure() (*Snapshot, error) {
	cores := s.topo.MonitoredCores()

	pkgBefore, coreBefore, err := s.readCounters(cores)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("sleeping", "duration", s.duration)
	s.clock.Sleep(s.duration)

	pkgAfter, coreAfter, err := s.readCounters(cores)
	if err != nil {
		return nil, err
	}

	snapshot := &Snapshot{
		Timestamp:    s.clock.Now(),
		Duration:     s.duration,
		CorePower:    make(map[int]device.Power, len(cores)),
		PackagePower: make(map[int]device.Power, len(cores)),
	}
	for _, cpu := range cores {
		snapshot.CorePower[cpu] = s.calcPower(coreBefore[cpu], coreAfter[cpu])
		snapshot.PackagePower[cpu] = s.calcPower(pkgBefore[cpu], pkgAfter[cpu])
	}

	return snapshot, nil
}

// readCounters reads the package and core energy counters of every
// monitored core, in core order
func (s *Sampler) readCounters(cores []int) (pkg, core map[int]int64, err error) {
	pkg = make(map[int]int64, len(cores))
	core = make(map[int]int64, len(cores))

	for _, cpu := range cores {
		if pkg[cpu], err = s.reader.Read(cpu, device.PkgEnergyMSR); err != nil {
			return nil, nil, fmt.Errorf("failed to read package energy of cpu %d: %w", cpu, err)
		}
		if core[cpu], err = s.reader.Read(cpu, device.CoreEnergyMSR); err != nil {
			return nil, nil, fmt.Errorf("failed to read core energy of cpu %d: %w", cpu, err)
		}
		s.logger.Debug("read energy counters", "cpu", cpu, "package", pkg[cpu], "core", core[cpu])
	}

	return pkg, core, nil
}

// calcPower converts a counter delta into power over the window
func (s *Sampler) calcPower(before, after int64) device.Power {
	watts := float64(after-before) * s.unit / s.duration.Seconds()
	return device.Power(watts) * device.Watt
}

// SocketCorePower sums the core power of every monitored core in the socket
func (sn *Snapshot) SocketCorePower(topo *topology.Info, socket int) device.Power {
	var total device.Power
	for cpu, p := range sn.CorePower {
		if s, ok := topo.SocketOf(cpu); ok && s == socket {
			total += p
		}
	}
	return total
}

// SocketPackagePower returns the package power of the socket. The package
// counter is mirrored on every core of the package, so the value of the
// lowest monitored core is taken; summing would double count.
func (sn *Snapshot) SocketPackagePower(topo *topology.Info, socket int) device.Power {
	for _, cpu := range topo.MonitoredCores() {
		if s, ok := topo.SocketOf(cpu); ok && s == socket {
			return sn.PackagePower[cpu]
		}
	}
	return 0
}
