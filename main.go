package main

import "github.com/roessland/stravasnap/cmd"

func main() {
	cmd.Execute()
}
