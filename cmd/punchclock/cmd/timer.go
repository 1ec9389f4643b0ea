package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/kbaldwin/punchclock/clock"
	"github.com/kbaldwin/punchclock/timesheet"
)

var (
	timerProject     int
	timerTask        int
	timerDescription string
)

var timerCmd = &cobra.Command{
	Use:   "timer",
	Short: "Start, stop and manage the work timer",
}

var timerStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a timer, optionally with project and task",
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

		var timer timesheet.Timer
		if timerProject != 0 {
			timer, err = ts.StartWithDetails(cmd.Context(), timerProject, timerTask, timerDescription)
		} else {
			timer, err = ts.Start(cmd.Context())
		}
		if err != nil {
			return err
		}
		fmt.Printf("Timer #%d started at %s UTC\n", timer.ID, timer.Start)
		return nil
	},
}

var timerStopCmd = &cobra.Command{
	Use:   "stop [id]",
	Short: "Stop the running timer and record the duration",
	Args:  cobra.MaximumNArgs(1),
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
		id, err := timerIDArg(cmd, args, ts)
		if err != nil {
			return err
		}
		seconds, err := ts.Stop(cmd.Context(), id)
		if err != nil {
			return err
		}
		fmt.Printf("Timer #%d stopped, recorded %s\n", id, formatElapsed(seconds))
		return nil
	},
}

var timerCancelCmd = &cobra.Command{
	Use:   "cancel [id]",
	Short: "Discard the running timer without recording time",
	Args:  cobra.MaximumNArgs(1),
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
		id, err := timerIDArg(cmd, args, ts)
		if err != nil {
			return err
		}
		if err := ts.Cancel(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Printf("Timer #%d canceled\n", id)
		return nil
	},
}

var timerAssignCmd = &cobra.Command{
	Use:   "assign [id]",
	Short: "Attach project, task and description to a running timer",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if timerProject == 0 || timerTask == 0 {
			return fmt.Errorf("assign requires --project and --task")
		}
		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.Close()

		ts, err := app.timesheetService()
		if err != nil {
			return err
		}
		id, err := timerIDArg(cmd, args, ts)
		if err != nil {
			return err
		}
		if err := ts.Assign(cmd.Context(), id, timerProject, timerTask, timerDescription); err != nil {
			return err
		}
		fmt.Printf("Timer #%d assigned\n", id)
		return nil
	},
}

var timerUpdateCmd = &cobra.Command{
	Use:   "update [id]",
	Short: "Change fields on a running timer",
	Args:  cobra.MaximumNArgs(1),
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
		id, err := timerIDArg(cmd, args, ts)
		if err != nil {
			return err
		}

		var opts timesheet.UpdateOptions
		if cmd.Flags().Changed("project") {
			opts.ProjectID = &timerProject
		}
		if cmd.Flags().Changed("task") {
			opts.TaskID = &timerTask
		}
		if cmd.Flags().Changed("description") {
			opts.Description = &timerDescription
		}
		if err := ts.Update(cmd.Context(), id, opts); err != nil {
			return err
		}
		fmt.Printf("Timer #%d updated\n", id)
		return nil
	},
}

var timerShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the running timer",
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
		timer, err := ts.Running(cmd.Context(), !statusFresh)
		if err != nil {
			return err
		}
		if timer == nil {
			fmt.Println("No timer running")
			return nil
		}
		elapsed, err := clock.ElapsedSince(timer.Start, time.Now())
		if err != nil {
			elapsed = 0
		}
		fmt.Printf("Timer #%d running for %s %s\n",
			timer.ID, formatElapsed(elapsed), timerDetails(timer.ProjectName, timer.TaskName, timer.Description))
		return nil
	},
}

// timerIDArg resolves the timer id from the positional argument, falling
// back to the currently running timer when omitted.
func timerIDArg(cmd *cobra.Command, args []string, ts *timesheet.Service) (int, error) {
	if len(args) > 0 {
		id, err := strconv.Atoi(args[0])
		if err != nil {
			return 0, fmt.Errorf("invalid timer id %q", args[0])
		}
		return id, nil
	}
	timer, err := ts.Running(cmd.Context(), true)
	if err != nil {
		return 0, err
	}
	if timer == nil {
		return 0, fmt.Errorf("no timer running")
	}
	return timer.ID, nil
}

func init() {
	for _, c := range []*cobra.Command{timerStartCmd, timerAssignCmd, timerUpdateCmd} {
		c.Flags().IntVar(&timerProject, "project", 0, "project id")
		c.Flags().IntVar(&timerTask, "task", 0, "task id")
		c.Flags().StringVar(&timerDescription, "description", "", "work description")
	}
	timerShowCmd.Flags().BoolVar(&statusFresh, "fresh", false, "bypass the local cache")

	timerCmd.AddCommand(timerStartCmd, timerStopCmd, timerCancelCmd,
		timerAssignCmd, timerUpdateCmd, timerShowCmd)
	rootCmd.AddCommand(timerCmd)
}
