package main

import (
	"os"

	"github.com/receiptdesk/receiptdesk/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
