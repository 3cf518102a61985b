package main

import (
	"bitcurrency-bot/internal/cli"
)

func main() {
	cli.Execute()
}
