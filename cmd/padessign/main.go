package main

import "github.com/evidensys/padessign/cli"

func main() {
	cli.Run()
}
