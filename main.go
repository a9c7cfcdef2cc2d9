package main

import (
	"os"

	"github.com/xianghua-2/MYDB/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
