package main

import "github.com/kozaktomas/companion/cmd"

func main() {
	cmd.Execute()
}
