package main

import "github.com/radiusdt/ppbot/internal/cli"

func main() {
	cli.Execute()
}
