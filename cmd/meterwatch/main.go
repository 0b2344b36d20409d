package main

import "smart-meter-monitor/internal/cli"

func main() {
	cli.Execute()
}
