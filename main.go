package main

import "github.com/Davincible/assistant-bridge/cmd"

func main() {
	cmd.Execute()
}
