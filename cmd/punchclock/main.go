package main

import "github.com/kbaldwin/punchclock/cmd/punchclock/cmd"

func main() {
	cmd.Execute()
}
