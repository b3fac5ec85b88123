package main

import (
	"github.com/campuskv/campuskv/cmd"
)

func main() {
	cmd.Execute()
}
