package cmd

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/kbaldwin/punchclock/clock"
	"github.com/kbaldwin/punchclock/timesheet"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Live ticking view of the running timer",
	Long: `Watch displays the running timer with a locally ticking elapsed-time
clock. The timer state is re-fetched periodically to bound drift from the
local clock; between fetches the display ticks without any network call.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.Close()

		ts, err := app.timesheetService()
		if err != nil {
			return err
		}

		model := watchModel{
			ts:           ts,
			syncInterval: app.cfg.SyncInterval,
		}
		_, err = tea.NewProgram(model).Run()
		return err
	},
}

type tickMsg time.Time

type syncMsg struct {
	timer  *timesheet.Timer
	offset clock.Offset
	err    error
}

// watchModel owns the scheduling; the timesheet service only sees repeated
// idempotent reads. Between syncs the display ticks on the local clock
// corrected by the captured server offset, so no per-second network calls
// are made and client clock skew does not distort the count.
type watchModel struct {
	ts           *timesheet.Service
	syncInterval time.Duration
	timer        *timesheet.Timer
	offset       clock.Offset
	synced       bool
	err          error
}

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(m.syncCmd(), tickCmd())
}

func (m watchModel) syncCmd() tea.Cmd {
	return func() tea.Msg {
		timer, offset, err := m.ts.Sync(context.Background())
		return syncMsg{timer: timer, offset: offset, err: err}
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	case tickMsg:
		return m, tickCmd()
	case syncMsg:
		m.timer = msg.timer
		m.offset = msg.offset
		m.err = msg.err
		m.synced = true
		return m, tea.Tick(m.syncInterval, func(time.Time) tea.Msg {
			return m.syncCmd()()
		})
	}
	return m, nil
}

var watchTitleStyle = lipgloss.NewStyle().Bold(true)

func (m watchModel) View() string {
	if !m.synced {
		return "Fetching timer…\n"
	}
	if m.err != nil {
		return "Error: " + m.err.Error() + "\n"
	}
	if m.timer == nil {
		return "No timer running. Press q to quit.\n"
	}
	elapsed, err := m.offset.Elapsed(m.timer.Start, time.Now())
	if err != nil {
		elapsed = 0
	}
	return fmt.Sprintf("%s %s\n%s\n%s\n",
		watchTitleStyle.Render(formatElapsed(elapsed)),
		timerDetails(m.timer.ProjectName, m.timer.TaskName, m.timer.Description),
		dimStyle.Render(fmt.Sprintf("timer #%d, started %s UTC", m.timer.ID, m.timer.Start)),
		dimStyle.Render("press q to quit"),
	)
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
