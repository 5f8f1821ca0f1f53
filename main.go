package main

import "github.com/pairgate/pairgate/cmd"

func main() {
	cmd.Execute()
}
