package main

import (
	"github.com/zielen-io/zielen/cmd"
	"github.com/zielen-io/zielen/cmd/util"
)

func main() {
	defer util.HandlePanic()
	cmd.Execute()
}
