package main

import "github.com/propflow/upkeep/services/scheduler/cli"

func main() {
	cli.Execute()
}
