package main

import "github.com/nextlevelbuilder/bridge-echo/cmd"

func main() {
	cmd.Execute()
}
