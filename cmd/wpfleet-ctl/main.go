package main

import "github.com/wpfleet/wpfleet/cmd/wpfleet-ctl/cmd"

func main() {
	cmd.Execute()
}
