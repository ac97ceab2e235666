package main

import "github.com/jfmyers9/firstscrobbles/cmd"

func main() {
	cmd.Execute()
}
