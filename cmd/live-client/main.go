package main

import "live-core/internal/client/cmd"

func main() {
	cmd.Execute()
}
