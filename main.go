package main

import "github.com/andresmejia3/jetstreamer/cmd"

func main() {
	cmd.Execute()
}
