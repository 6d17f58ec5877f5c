package main

import "github.com/smallnest/paperrag/internal/commands"

func main() {
	commands.Execute()
}
