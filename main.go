package main

import "github.com/clipforge/clipforge/cmd"

func main() {
	cmd.Execute()
}
