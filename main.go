package main

import (
	"github.com/DR-lin-eng/download-speed-tester/cmd"
)

func main() {
	cmd.Execute()
}
