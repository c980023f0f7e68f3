package main

import (
	"os"

	"realtime_dashboard/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
