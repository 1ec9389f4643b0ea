package cmd

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/kbaldwin/punchclock/attendance"
	"github.com/kbaldwin/punchclock/clock"
)

var statusFresh bool

var (
	checkedInStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
	checkedOutStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	dimStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show attendance state and the running timer",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.Close()

		att, err := app.attendanceService()
		if err != nil {
			return err
		}
		state, err := att.GetStatus(cmd.Context(), !statusFresh)
		if err != nil {
			return err
		}

		if state.Status == attendance.CheckedIn {
			fmt.Println(checkedInStyle.Render("● checked in"))
			if state.LastCheckIn != "" {
				fmt.Println(dimStyle.Render("since " + state.LastCheckIn + " UTC"))
			}
		} else {
			fmt.Println(checkedOutStyle.Render("○ checked out"))
			if state.LastCheckOut != "" {
				fmt.Println(dimStyle.Render("since " + state.LastCheckOut + " UTC"))
			}
		}
		fmt.Printf("Hours today: %.2f\n", state.HoursToday)

		ts, err := app.timesheetService()
		if err != nil {
			return err
		}
		timer, err := ts.Running(cmd.Context(), !statusFresh)
		if err != nil {
			return err
		}
		if timer == nil {
			fmt.Println(dimStyle.Render("No timer running"))
			return nil
		}
		elapsed, err := clock.ElapsedSince(timer.Start, time.Now())
		if err != nil {
			elapsed = 0
		}
		fmt.Printf("Timer #%d running for %s %s\n",
			timer.ID, formatElapsed(elapsed), dimStyle.Render(timerDetails(timer.ProjectName, timer.TaskName, timer.Description)))
		return nil
	},
}

func timerDetails(project, task, description string) string {
	switch {
	case project == "" && task == "":
		return "(unassigned)"
	case task == "":
		return "(" + project + ")"
	default:
		s := "(" + project + " / " + task
		if description != "" {
			s += ": " + description
		}
		return s + ")"
	}
}

func formatElapsed(seconds int64) string {
	return fmt.Sprintf("%02d:%02d:%02d", seconds/3600, (seconds%3600)/60, seconds%60)
}

func init() {
	statusCmd.Flags().BoolVar(&statusFresh, "fresh", false, "bypass the local cache")
	rootCmd.AddCommand(statusCmd)
}
