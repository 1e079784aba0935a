package main

import (
	"github.com/gaslift-labs/gaslift/cmd"
)

func main() {
	cmd.Execute()
}
