package main

import "github.com/dyike/tradeflow/internal/cli"

func main() {
	cli.Run()
}
