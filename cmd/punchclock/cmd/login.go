package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/awnumar/memguard"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	loginURL  string
	loginUser string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate against the server and store the session",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.Close()

		url := loginURL
		if url == "" {
			url = app.cfg.ServerURL
		}
		if url == "" {
			return fmt.Errorf("no server URL: pass --url or set server_url in the config")
		}
		if loginUser == "" {
			return fmt.Errorf("no username: pass --user")
		}

		password, err := readPassword()
		if err != nil {
			return err
		}
		defer password.Destroy()

		info, err := app.sessions.Login(cmd.Context(), url, loginUser, password.String())
		if err != nil {
			return err
		}

		if info.EmployeeName != "" {
			fmt.Printf("Logged in as %s (%s)\n", info.Username, info.EmployeeName)
		} else {
			fmt.Printf("Logged in as %s\n", info.Username)
		}
		return nil
	},
}

// readPassword prompts without echo on a terminal and falls back to a plain
// stdin read when input is piped. The bytes live in a locked buffer until
// the authenticate call consumes them.
func readPassword() (*memguard.LockedBuffer, error) {
	fmt.Fprint(os.Stderr, "Password: ")
	if term.IsTerminal(int(os.Stdin.Fd())) {
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return nil, fmt.Errorf("reading password: %w", err)
		}
		return memguard.NewBufferFromBytes(raw), nil
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return nil, fmt.Errorf("reading password: %w", err)
	}
	return memguard.NewBufferFromBytes([]byte(strings.TrimRight(line, "\r\n"))), nil
}

func init() {
	loginCmd.Flags().StringVar(&loginURL, "url", "", "server base URL")
	loginCmd.Flags().StringVar(&loginUser, "user", "", "login name")
	rootCmd.AddCommand(loginCmd)
}
