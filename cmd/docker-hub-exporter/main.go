package main

import (
	"os"
)

func main() {
	cmd := (&command{}).Cmd()
	cmd.AddCommand(versionCmd)
	cmd.AddCommand((&showCommand{}).Cmd())

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
