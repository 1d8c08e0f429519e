// SPDX-FileCopyrightText: 2025 The Ryzen Power Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"
)

// MSRReader reads model-specific registers through the msr device nodes,
// one node per logical CPU. Device files are opened lazily and kept in a
// pool until Close so that the two passes of a measurement window reuse
// the same handle.
type MSRReader struct {
	devicePath string // MSR device path template, e.g. "/dev/cpu/%d/msr"
	logger     *slog.Logger

	mu    sync.Mutex
	files map[int]*os.File // CPU ID -> open MSR device file
}

// NewMSRReader creates a new MSR reader using the specified device path template
func NewMSRReader(devicePath string, logger *slog.Logger) *MSRReader {
	if logger == nil {
		logger = slog.Default()
	}

	return &MSRReader{
		devicePath: devicePath,
		logger:     logger.With("service", "msr-reader"),
		files:      make(map[int]*os.File),
	}
}

// Read returns the 64-bit register at offset on the given CPU. The raw bit
// pattern is decoded little-endian and reinterpreted as a signed integer,
// matching the native MSR read width.
func (m *MSRReader) Read(cpu int, offset uint32) (int64, error) {
	f, err := m.fileFor(cpu)
	if err != nil {
		return 0, err
	}

	if _, err := f.Seek(int64(offset), 0); err != nil {
		return 0, fmt.Errorf("failed to seek to MSR offset 0x%x on cpu %d: %w", offset, cpu, err)
	}

	var raw uint64
	if err := binary.Read(f, binary.LittleEndian, &raw); err != nil {
		return 0, fmt.Errorf("failed to read MSR 0x%x from cpu %d: %w", offset, cpu, err)
	}

	return int64(raw), nil
}

// EnergyUnit reads the power unit register on CPU 0 and returns the energy
// scaling factor in joules per counter tick. The unit register is shared
// across the package, so callers read it once and pass the value around
// rather than calling this per core.
func (m *MSRReader) EnergyUnit() (float64, error) {
	raw, err := m.Read(0, PwrUnitMSR)
	if err != nil {
		return 0, fmt.Errorf("failed to read power unit register: %w", err)
	}

	unit := EnergyUnitFromRaw(raw)
	m.logger.Debug("read energy unit", "joules_per_tick", unit)
	return unit, nil
}

// Close closes all open MSR device files and drains the pool
func (m *MSRReader) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var lastErr error
	for cpu, f := range m.files {
		if err := f.Close(); err != nil {
			lastErr = err
			m.logger.Warn("failed to close MSR device", "cpu", cpu, "error", err)
		}
	}
	m.files = make(map[int]*os.File)

	return lastErr
}

// fileFor returns the open MSR device file for cpu, opening it on first use
func (m *MSRReader) fileFor(cpu int) (*os.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if f, ok := m.files[cpu]; ok {
		return f, nil
	}

	path := fmt.Sprintf(m.devicePath, cpu)
	f, err := os.Open(path)
	if err != nil {
		return nil, mapOpenError(path, err)
	}
	m.files[cpu] = f

	return f, nil
}

// mapOpenError translates device open failures into the sentinel errors
// surfaced to the operator, keeping the remedy in the message
func mapOpenError(path string, err error) error {
	switch {
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("open %s: %w", path, ErrPermissionDenied)
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("open %s: %w", path, ErrDeviceNotFound)
	default:
		return fmt.Errorf("failed to open MSR device %s: %w", path, err)
	}
}
