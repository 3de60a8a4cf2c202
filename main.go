package main

import "github.com/gitpulse/gitpulse-indexer/cmd"

func main() {
	cmd.Execute()
}
