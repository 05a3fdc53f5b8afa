package main

import "autoflow/internal/cli"

func main() {
	cli.Execute()
}
