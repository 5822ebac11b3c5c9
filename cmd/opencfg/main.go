package main

import (
	"opencfg/internal/cli"
)

func main() {
	cli.Execute()
}
