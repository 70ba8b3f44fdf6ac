package main

import (
	"os"

	"josephlewis.net/mysh/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
