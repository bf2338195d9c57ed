package main

import (
	"github.com/pagelift/pagelift/cmd/pagelift/cmd"
)

func main() {
	cmd.Execute()
}
