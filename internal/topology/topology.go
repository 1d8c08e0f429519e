// SPDX-FileCopyrightText: 2025 The Ryzen Power Authors
// SPDX-License-Identifier: Apache-2.0

package topology

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Info is the CPU topology of the host: which physical package (socket)
// each logical CPU belongs to, and whether SMT is enabled. It is built once
// at startup and read-only afterwards.
type Info struct {
	packages map[int]int // logical CPU ID -> socket ID
	smt      bool
}

// New builds an Info from an explicit package mapping. Production code goes
// through Discover; this is for wiring fixtures.
func New(packages map[int]int, smt bool) *Info {
	p := make(map[int]int, len(packages))
	for cpu, socket := range packages {
		p[cpu] = socket
	}
	return &Info{packages: p, smt: smt}
}

// Discover enumerates logical CPUs under sysfs and reads their physical
// package ids. CPU ids are treated as a contiguous range starting at 0;
// enumeration stops at the first id without a topology descriptor.
func Discover(sysfs string, logger *slog.Logger) (*Info, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("service", "topology")

	smt, err := detectSMT(sysfs, logger)
	if err != nil {
		return nil, err
	}

	packages := map[int]int{}
	for cpu := 0; ; cpu++ {
		path := packageIDPath(sysfs, cpu)
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read package id of cpu %d: %w", cpu, err)
		}

		socket, err := strconv.Atoi(strings.TrimSpace(string(data)))
		if err != nil {
			return nil, fmt.Errorf("failed to parse package id of cpu %d: %w", cpu, err)
		}

		logger.Debug("detected cpu", "cpu", cpu, "socket", socket)
		packages[cpu] = socket
	}

	if len(packages) == 0 {
		return nil, fmt.Errorf("no cpu topology descriptors found under %s", sysfs)
	}

	return &Info{packages: packages, smt: smt}, nil
}

// detectSMT reads the SMT control file. A missing file is the one
// recoverable condition: assume siblings exist and under-report cores
// rather than double-count them.
func detectSMT(sysfs string, logger *slog.Logger) (bool, error) {
	data, err := os.ReadFile(smtControlPath(sysfs))
	if errors.Is(err, fs.ErrNotExist) {
		logger.Warn("unable to detect CPU SMT status, assuming SMT is on")
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read SMT control file: %w", err)
	}

	status := strings.TrimSpace(string(data))
	logger.Debug("CPU SMT status", "status", status)
	return status == "on", nil
}

// SMT reports whether simultaneous multithreading is enabled
func (i *Info) SMT() bool {
	return i.smt
}

// NumCPUs returns the number of detected logical CPUs
func (i *Info) NumCPUs() int {
	return len(i.packages)
}

// SocketOf returns the socket id of a logical CPU
func (i *Info) SocketOf(cpu int) (int, bool) {
	socket, ok := i.packages[cpu]
	return socket, ok
}

// MonitoredCores returns the logical CPUs whose energy counters are
// sampled, sorted ascending. Under SMT only even-numbered CPUs are kept:
// sibling pairs share one set of per-core counters and the even sibling is
// treated as canonical. This assumes exactly 2 threads per physical core,
// which matches every Zen part so far but is not verified against
// thread_siblings_list.
func (i *Info) MonitoredCores() []int {
	cores := make([]int, 0, len(i.packages))
	for cpu := range i.packages {
		if i.smt && cpu%2 != 0 {
			continue
		}
		cores = append(cores, cpu)
	}
	sort.Ints(cores)
	return cores
}

// Sockets returns the distinct socket ids, sorted ascending
func (i *Info) Sockets() []int {
	seen := map[int]bool{}
	sockets := []int{}
	for _, socket := range i.packages {
		if !seen[socket] {
			seen[socket] = true
			sockets = append(sockets, socket)
		}
	}
	sort.Ints(sockets)
	return sockets
}

// CoreLabel returns the physical core number shown in the report: the
// logical id halved when SMT folds sibling pairs, the id itself otherwise
func (i *Info) CoreLabel(cpu int) int {
	if i.smt {
		return cpu / 2
	}
	return cpu
}

func packageIDPath(sysfs string, cpu int) string {
	return filepath.Join(sysfs, "devices/system/cpu", fmt.Sprintf("cpu%d", cpu), "topology/physical_package_id")
}

func smtControlPath(sysfs string) string {
	return filepath.Join(sysfs, "devices/system/cpu/smt/control")
}
