package main

import "github.com/jmcleod/ballotbox/cmd/ballotbox/cmd"

func main() {
	cmd.Execute()
}
