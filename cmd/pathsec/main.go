package main

import (
	"os"

	"github.com/asgardtech/pathsec/internal/cli/commands"
)

func main() {
	os.Exit(commands.ExitCode(commands.Execute()))
}
