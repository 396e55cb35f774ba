package ui

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

type tableKind int

const (
	processTable tableKind = iota
	connectionTable
	remoteAddressTable
)

func (k tableKind) title() string {
	switch k {
	case processTable:
		return " Utilization by process name "
	case connectionTable:
		return " Utilization by connection "
	default:
		return " Utilization by remote address "
	}
}

func newTable(kind tableKind, headers []string) *tview.Table {
	table := tview.NewTable().SetFixed(1, 0)
	table.SetBorder(true).SetTitle(kind.title())

	for col, header := range headers {
		cell := tview.NewTableCell(header).
			SetTextColor(tcell.ColorYellow).
			SetAttributes(tcell.AttrBold).
			SetExpansion(1)
		table.SetCell(0, col, cell)
	}
	return table
}

func (u *UI) buildTable(kind tableKind, rate string) *tview.Table {
	switch kind {
	case processTable:
		table := newTable(kind, []string{"Process", "Connections", "Up / Down"})
		for i, row := range u.state.ProcessRows() {
			table.SetCell(i+1, 0, tview.NewTableCell(row.Name))
			table.SetCell(i+1, 1, tview.NewTableCell(fmt.Sprintf("%d", row.ConnectionCount)))
			table.SetCell(i+1, 2, tview.NewTableCell(upDown(row.BytesUploaded, row.BytesDownloaded, rate)))
		}
		return table

	case connectionTable:
		table := newTable(kind, []string{"Connection", "Process", "Up / Down"})
		for i, row := range u.state.ConnectionRows() {
			table.SetCell(i+1, 0, tview.NewTableCell(u.connectionLabel(row)))
			table.SetCell(i+1, 1, tview.NewTableCell(row.ProcessName))
			table.SetCell(i+1, 2, tview.NewTableCell(upDown(row.BytesUploaded, row.BytesDownloaded, rate)))
		}
		return table

	default:
		table := newTable(kind, []string{"Remote Address", "Connections", "Up / Down"})
		for i, row := range u.state.RemoteRows() {
			table.SetCell(i+1, 0, tview.NewTableCell(row.Host))
			table.SetCell(i+1, 1, tview.NewTableCell(fmt.Sprintf("%d", row.ConnectionCount)))
			table.SetCell(i+1, 2, tview.NewTableCell(upDown(row.BytesUploaded, row.BytesDownloaded, rate)))
		}
		return table
	}
}

// connectionLabel renders "<iface>:<local port> => <remote>:<port> (<proto>)".
func (u *UI) connectionLabel(row ConnectionRow) string {
	conn := row.Connection
	return fmt.Sprintf("<%s>:%d => %s:%d (%s)",
		row.InterfaceName,
		conn.Local.Port,
		u.state.Host(conn.Remote.IP),
		conn.Remote.Port,
		conn.Local.Protocol,
	)
}

func upDown(up, down uint64, rate string) string {
	return fmt.Sprintf("%s%s / %s%s", formatBytes(up), rate, formatBytes(down), rate)
}
