package main

import (
	"github.com/cardhaul/cardhaul/internal/cli"
)

func main() {
	cli.Execute()
}
