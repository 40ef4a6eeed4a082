package main

import "eventsync/cmd/client/cmd"

func main() {
	cmd.Execute()
}
