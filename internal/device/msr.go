// SPDX-FileCopyrightText: 2025 The Ryzen Power Authors
// SPDX-License-Identifier: Apache-2.0

package device

import "errors"

// MSR register offsets for AMD (family 17h and later) RAPL energy counters.
// These live in the vendor-specific MSR range, unlike the Intel equivalents.
const (
	// PwrUnitMSR holds the scaling factors for time, energy and power
	PwrUnitMSR uint32 = 0xC0010299

	// CoreEnergyMSR is the per-core energy accumulator
	CoreEnergyMSR uint32 = 0xC001029A

	// PkgEnergyMSR is the package energy accumulator, mirrored on every
	// core of the same package
	PkgEnergyMSR uint32 = 0xC001029B

	// Energy unit exponent lives in bits 12:8 of PwrUnitMSR
	energyUnitMask  = 0x1F00
	energyUnitShift = 8
)

var (
	// ErrPermissionDenied is returned when the MSR device rejects the read
	ErrPermissionDenied = errors.New("root privilege is required to read model-specific registers")

	// ErrDeviceNotFound is returned when the MSR device node does not exist
	ErrDeviceNotFound = errors.New(`msr driver is not loaded, try "sudo modprobe msr" to load the msr module`)
)

// EnergyUnitFromRaw extracts the 5-bit energy unit exponent e from a raw
// power unit register value and returns the energy unit as 2^-e joules per
// counter tick.
func EnergyUnitFromRaw(raw int64) float64 {
	e := (uint64(raw) & energyUnitMask) >> energyUnitShift
	return 1.0 / float64(uint64(1)<<e)
}
