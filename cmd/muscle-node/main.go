// Command muscle-node runs the post office of one simulation instance behind
// the configured transports and publishes its locations in the registry.
// Nothing in this binary deposits messages. Instances that send embed
// pkg/communicator, which owns its own post office; muscle-node is the
// standalone host of the same serving and registration path.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
