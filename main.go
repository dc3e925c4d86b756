package main

import "github.com/jtodic/commit-builder/cmd"

func main() {
	cmd.Execute()
}
