package ui

import (
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/nozo-moto/netbw/internal/config"
	"github.com/nozo-moto/netbw/pkg/types"
)

// minTableHeight is the number of rows below which a table is not shown.
const minTableHeight = 6

// UI renders the traffic state either onto a terminal or as raw text lines.
type UI struct {
	term   *Terminal
	opts   config.RenderOptions
	state  *State
	tables []tableKind
	now    func() time.Time
}

// New returns a UI drawing on term. A nil term is used for raw output.
func New(term *Terminal, opts config.RenderOptions) *UI {
	return &UI{
		term:   term,
		opts:   opts,
		state:  NewState(opts.TotalUtilization),
		tables: enabledTables(opts),
		now:    time.Now,
	}
}

func enabledTables(opts config.RenderOptions) []tableKind {
	var tables []tableKind
	if opts.Processes {
		tables = append(tables, processTable)
	}
	if opts.Connections {
		tables = append(tables, connectionTable)
	}
	if opts.Addresses {
		tables = append(tables, remoteAddressTable)
	}
	if len(tables) == 0 {
		tables = []tableKind{processTable, connectionTable, remoteAddressTable}
	}
	return tables
}

func (u *UI) TableCount() int {
	return len(u.tables)
}

func (u *UI) State() *State {
	return u.state
}

func (u *UI) UpdateState(socketsToProcs map[types.LocalSocket]string, utilization types.Utilization, ipToHost types.IpTable) {
	u.state.Update(socketsToProcs, utilization, ipToHost)
}

func (u *UI) Draw(paused, showDNS bool, elapsed time.Duration, offset int) {
	if u.term == nil {
		return
	}
	u.term.Paint(func(screen tcell.Screen) {
		width, height := screen.Size()
		layout := u.layout(paused, showDNS, elapsed, offset, height)
		layout.SetRect(0, 0, width, height)

		screen.Clear()
		layout.Draw(screen)
		screen.Show()
	})
}

func (u *UI) layout(paused, showDNS bool, elapsed time.Duration, offset, height int) tview.Primitive {
	rate := "/s"
	if u.opts.TotalUtilization {
		rate = ""
	}

	status := ""
	if paused {
		status = "  [yellow::b]PAUSED[-:-:-]"
	}
	totals := tview.NewTextView().SetDynamicColors(true)
	totals.SetText(fmt.Sprintf(" Total Up / Down: [green]%s[white]%s",
		upDown(u.state.TotalBytesUploaded, u.state.TotalBytesDownloaded, rate), status))

	clock := tview.NewTextView().SetTextAlign(tview.AlignRight)
	clock.SetText(fmt.Sprintf("Elapsed: %s ", formatDuration(elapsed)))

	header := tview.NewFlex().
		AddItem(totals, 0, 3, false).
		AddItem(clock, 0, 1, false)

	help := " Press <SPACE> to pause. Use <TAB> to rearrange tables."
	if !showDNS {
		help += " (DNS queries hidden)."
	}
	footer := tview.NewTextView().SetText(help)

	body := tview.NewFlex().SetDirection(tview.FlexRow)
	for _, kind := range u.visibleTables(offset, height-2) {
		body.AddItem(u.buildTable(kind, rate), 0, 1, false)
	}

	return tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(header, 1, 0, false).
		AddItem(body, 0, 1, false).
		AddItem(footer, 1, 0, false)
}

// visibleTables rotates the enabled tables so the one at offset comes first
// and keeps as many as fit into height rows. At least one is always shown.
func (u *UI) visibleTables(offset, height int) []tableKind {
	n := len(u.tables)
	fit := height / minTableHeight
	if fit < 1 {
		fit = 1
	}
	if fit > n {
		fit = n
	}

	visible := make([]tableKind, 0, fit)
	for i := 0; i < fit; i++ {
		visible = append(visible, u.tables[(offset+i)%n])
	}
	return visible
}

// OutputText writes the current state as raw lines.
func (u *UI) OutputText(write func(string)) {
	ts := u.now().Unix()

	write("Refreshing:")
	for _, kind := range u.tables {
		switch kind {
		case processTable:
			for _, row := range u.state.ProcessRows() {
				write(fmt.Sprintf("process: <%d> %q up/down Bytes: %d/%d connections: %d",
					ts, row.Name, row.BytesUploaded, row.BytesDownloaded, row.ConnectionCount))
			}
		case connectionTable:
			for _, row := range u.state.ConnectionRows() {
				write(fmt.Sprintf("connection: <%d> %s up/down Bytes: %d/%d process: %q",
					ts, u.connectionLabel(row), row.BytesUploaded, row.BytesDownloaded, row.ProcessName))
			}
		case remoteAddressTable:
			for _, row := range u.state.RemoteRows() {
				write(fmt.Sprintf("remote_address: <%d> %s up/down Bytes: %d/%d connections: %d",
					ts, row.Host, row.BytesUploaded, row.BytesDownloaded, row.ConnectionCount))
			}
		}
	}
}

// End clears the screen at the end of the session.
func (u *UI) End() {
	if u.term == nil {
		return
	}
	u.term.Paint(func(screen tcell.Screen) {
		screen.Clear()
		screen.Show()
	})
}
