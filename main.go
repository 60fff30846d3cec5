package main

import "github.com/nextlevelbuilder/vidcoach/cmd"

func main() {
	cmd.Execute()
}
