// Package main is the entry point for the rollbook archival engine.
package main

import "rollbook/cmd"

func main() {
	cmd.Execute()
}
