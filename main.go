package main

import "github.com/jfmyers9/scrobstat/cmd"

func main() {
	cmd.Execute()
}
