package main

import "pairwatch/internal/cli"

func main() {
	cli.Execute()
}
