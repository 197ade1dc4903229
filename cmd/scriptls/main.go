package main

import (
	"os"
	"scriptls/internal/ui/cli"
)

func main() {
	os.Exit(cli.Run(os.Args[1:]))
}
