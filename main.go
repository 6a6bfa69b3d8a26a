package main

import "github.com/mickamy/relmodel/internal/cli"

var version = "dev"

func main() {
	cli.Execute(version)
}
