package main

import "github.com/samuelfneumann/relsac/cmd"

func main() {
	cmd.Execute()
}
