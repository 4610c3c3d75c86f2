// Command cocowatch runs the watch-and-index coordinator.
package main

import (
	"os"

	"github.com/cocodex/cocowatch/cmd/cocowatch/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
