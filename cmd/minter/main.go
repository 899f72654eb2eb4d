package main

import "github.com/vietddude/minter/internal/cli"

func main() {
	cli.Execute()
}
