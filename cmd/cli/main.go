package main

import "github.com/mchmarny/combo/pkg/cli"

func main() {
	cli.Execute()
}
