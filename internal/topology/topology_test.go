// SPDX-FileCopyrightText: 2025 The Ryzen Power Authors
// SPDX-License-Identifier: Apache-2.0

package topology

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeSysfs builds a sysfs fixture with one topology descriptor per entry
// in packages. smt is the content of the SMT control file; "" omits the file.
func writeSysfs(t *testing.T, packages map[int]string, smt string) string {
	t.Helper()

	dir := t.TempDir()
	for cpu, pkg := range packages {
		topoDir := filepath.Join(dir, "devices/system/cpu", fmt.Sprintf("cpu%d", cpu), "topology")
		require.NoError(t, os.MkdirAll(topoDir, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(topoDir, "physical_package_id"), []byte(pkg), 0o644))
	}
	if smt != "" {
		smtDir := filepath.Join(dir, "devices/system/cpu/smt")
		require.NoError(t, os.MkdirAll(smtDir, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(smtDir, "control"), []byte(smt), 0o644))
	}
	return dir
}

func TestDiscover(t *testing.T) {
	t.Run("contiguous cpus on one socket", func(t *testing.T) {
		sysfs := writeSysfs(t, map[int]string{0: "0\n", 1: "0\n", 2: "0\n", 3: "0\n"}, "on\n")

		topo, err := Discover(sysfs, nil)
		require.NoError(t, err)

		assert.Equal(t, 4, topo.NumCPUs())
		assert.True(t, topo.SMT())
		socket, ok := topo.SocketOf(3)
		assert.True(t, ok)
		assert.Equal(t, 0, socket)
	})

	t.Run("enumeration stops at the first gap", func(t *testing.T) {
		// cpu4 is missing; cpu5 must not be picked up even though it exists
		sysfs := writeSysfs(t, map[int]string{0: "0", 1: "0", 2: "1", 3: "1", 5: "1"}, "off")

		topo, err := Discover(sysfs, nil)
		require.NoError(t, err)

		assert.Equal(t, 4, topo.NumCPUs())
		_, ok := topo.SocketOf(5)
		assert.False(t, ok)
	})

	t.Run("two sockets", func(t *testing.T) {
		sysfs := writeSysfs(t, map[int]string{0: "0", 1: "0", 2: "1", 3: "1"}, "off")

		topo, err := Discover(sysfs, nil)
		require.NoError(t, err)
		assert.Equal(t, []int{0, 1}, topo.Sockets())
	})

	t.Run("unparseable package id is fatal", func(t *testing.T) {
		sysfs := writeSysfs(t, map[int]string{0: "0", 1: "not-a-number"}, "on")

		_, err := Discover(sysfs, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cpu 1")
	})

	t.Run("no cpus at all is fatal", func(t *testing.T) {
		_, err := Discover(t.TempDir(), nil)
		assert.Error(t, err)
	})

	t.Run("missing smt control defaults to enabled", func(t *testing.T) {
		sysfs := writeSysfs(t, map[int]string{0: "0", 1: "0"}, "")

		topo, err := Discover(sysfs, nil)
		require.NoError(t, err)
		assert.True(t, topo.SMT())
	})

	t.Run("smt off", func(t *testing.T) {
		sysfs := writeSysfs(t, map[int]string{0: "0"}, "off\n")

		topo, err := Discover(sysfs, nil)
		require.NoError(t, err)
		assert.False(t, topo.SMT())
	})

	t.Run("smt forceoff is not on", func(t *testing.T) {
		sysfs := writeSysfs(t, map[int]string{0: "0"}, "forceoff\n")

		topo, err := Discover(sysfs, nil)
		require.NoError(t, err)
		assert.False(t, topo.SMT())
	})
}

func TestMonitoredCores(t *testing.T) {
	packages := map[int]int{0: 0, 1: 0, 2: 0, 3: 0}

	t.Run("smt enabled keeps even siblings only", func(t *testing.T) {
		topo := New(packages, true)
		assert.Equal(t, []int{0, 2}, topo.MonitoredCores())
	})

	t.Run("smt disabled keeps all cores", func(t *testing.T) {
		topo := New(packages, false)
		assert.Equal(t, []int{0, 1, 2, 3}, topo.MonitoredCores())
	})

	t.Run("result is sorted", func(t *testing.T) {
		topo := New(map[int]int{7: 1, 3: 0, 5: 1, 1: 0, 0: 0, 2: 0, 4: 1, 6: 1}, false)
		assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7}, topo.MonitoredCores())
	})
}

func TestCoreLabel(t *testing.T) {
	smtOn := New(map[int]int{0: 0, 2: 0}, true)
	assert.Equal(t, 0, smtOn.CoreLabel(0))
	assert.Equal(t, 1, smtOn.CoreLabel(2))

	smtOff := New(map[int]int{0: 0, 1: 0}, false)
	assert.Equal(t, 1, smtOff.CoreLabel(1))
}
