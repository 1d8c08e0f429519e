// SPDX-FileCopyrightText: 2025 The Ryzen Power Authors
// SPDX-License-Identifier: Apache-2.0

package stdout

import (
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/ryzen-power/ryzenpower/internal/device"
	"github.com/ryzen-power/ryzenpower/internal/monitor"
	"github.com/ryzen-power/ryzenpower/internal/topology"
)

// cell is one table cell: either a row label or a watts value. Keeping the
// kind explicit avoids formatting through interface inspection.
type cell struct {
	kind  cellKind
	label string
	watts device.Power
}

type cellKind int

const (
	blankCell cellKind = iota
	labelCell
	wattsCell
)

func label(format string, args ...any) cell {
	return cell{kind: labelCell, label: fmt.Sprintf(format, args...)}
}

func watts(p device.Power) cell {
	return cell{kind: wattsCell, watts: p}
}

func (c cell) String() string {
	switch c.kind {
	case labelCell:
		return c.label
	case wattsCell:
		return c.watts.String()
	default:
		return ""
	}
}

// Render writes the socket/core power table: one row per socket with its
// summed core power and single package power, followed by one row per
// monitored core. Core numbers are physical core labels, so sibling pairs
// fold to one number under SMT.
func Render(out io.Writer, topo *topology.Info, snapshot *monitor.Snapshot) {
	rows := [][]cell{}
	for _, socket := range topo.Sockets() {
		rows = append(rows, []cell{
			label("SOCKET %2d:", socket),
			watts(snapshot.SocketCorePower(topo, socket)),
			watts(snapshot.SocketPackagePower(topo, socket)),
		})
		for _, cpu := range topo.MonitoredCores() {
			if s, ok := topo.SocketOf(cpu); !ok || s != socket {
				continue
			}
			rows = append(rows, []cell{
				label("  CORE %2d:", topo.CoreLabel(cpu)),
				watts(snapshot.CorePower[cpu]),
				{},
			})
		}
	}

	table := tablewriter.NewWriter(out)
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Formatting.Alignment = tw.AlignLeft
	})
	table.Header([]string{"", "Cores Power", "Package Power"})
	_ = table.Bulk(stringify(rows))
	_ = table.Render()
}

func stringify(rows [][]cell) [][]string {
	out := make([][]string, 0, len(rows))
	for _, row := range rows {
		r := make([]string, 0, len(row))
		for _, c := range row {
			r = append(r, c.String())
		}
		out = append(out, r)
	}
	return out
}
