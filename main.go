package main

import (
	"github.com/luma/linehash/cmd"
)

func main() {
	cmd.Execute()
}
