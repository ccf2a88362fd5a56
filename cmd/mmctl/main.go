package main

import "github.com/mcoot/roommatch/internal/cli"

func main() {
	cli.Execute()
}
