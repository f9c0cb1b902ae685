package main

import "parstage/cmd/parstage/cmd"

func main() {
	cmd.Execute()
}
