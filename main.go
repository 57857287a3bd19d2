package main

import "github.com/chriserin/gherkit/cmd"

func main() {
	cmd.Execute()
}
