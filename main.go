package main

import (
	"os"

	"github.com/user/ci-analysis-collector/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
