package main

import "github.com/Alijeyrad/teleconsult/cmd"

func main() {
	cmd.Execute()
}
