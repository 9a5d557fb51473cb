package main

import "github.com/Alturino/fitclub/cmd"

func main() {
	cmd.Start()
}
