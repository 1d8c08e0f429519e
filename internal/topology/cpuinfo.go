// SPDX-FileCopyrightText: 2025 The Ryzen Power Authors
// SPDX-License-Identifier: Apache-2.0

package topology

import (
	"log/slog"

	"github.com/prometheus/procfs"
)

const amdVendorID = "AuthenticAMD"

// CheckVendor inspects /proc/cpuinfo and warns when the host CPU is not an
// AMD part. The energy counter offsets decoded by this tool only exist in
// the AMD MSR range, so a mismatch almost certainly means garbage readings
// or read failures. The check is advisory only; measurement proceeds.
func CheckVendor(procfsPath string, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("service", "topology")

	fs, err := procfs.NewFS(procfsPath)
	if err != nil {
		logger.Warn("unable to open procfs, skipping CPU vendor check", "path", procfsPath, "error", err)
		return
	}

	info, err := fs.CPUInfo()
	if err != nil || len(info) == 0 {
		logger.Warn("unable to read cpuinfo, skipping CPU vendor check", "error", err)
		return
	}

	logger.Debug("detected CPU", "vendor", info[0].VendorID, "model", info[0].ModelName)
	if info[0].VendorID != amdVendorID {
		logger.Warn("CPU vendor is not AMD, energy counters may be absent or misdecoded",
			"vendor", info[0].VendorID)
	}
}
