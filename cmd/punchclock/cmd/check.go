package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kbaldwin/punchclock/attendance"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Toggle the check-in state",
	Long: `Check toggles attendance: checks in when checked out and vice versa.
The server decides the direction from its own current state.`,
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
		state, err := att.Toggle(cmd.Context())
		if err != nil {
			return err
		}
		if state.Status == attendance.CheckedIn {
			fmt.Println(checkedInStyle.Render("● checked in"))
		} else {
			fmt.Println(checkedOutStyle.Render("○ checked out"))
			fmt.Printf("Hours today: %.2f\n", state.HoursToday)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
