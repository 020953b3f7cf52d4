// Command conmaster is a CANopen master built on package master: it
// reads a bus/node topology from an INI config file, opens a CAN
// transport and drives the single-threaded poll loop spec'd by the
// master package's own doc comment.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
