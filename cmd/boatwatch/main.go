package main

import "github.com/vietddude/boatwatch/internal/cli"

func main() {
	cli.Execute()
}
