package main

import "pathembed/internal/cli"

func main() {
	cli.Execute()
}
