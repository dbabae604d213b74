package main

import (
	"os"

	"github.com/netgrove/bamsync/cmd/bamsync/commands"
)

func main() {
	os.Exit(commands.Execute())
}
