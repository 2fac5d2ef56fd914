package main

import "github.com/orion-companion/orion/cmd"

func main() {
	cmd.Execute()
}
