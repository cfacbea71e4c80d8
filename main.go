package main

import (
	"os"

	"github.com/harrisonrobin/onesheet/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}
