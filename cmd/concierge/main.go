package main

import (
	"github.com/spf13/cobra"
)

func main() {
	var root = &cobra.Command{Use: "concierge"}

	root.AddCommand(serveCMD(), chatCMD(), migrateCMD())
	_ = root.Execute()
}
