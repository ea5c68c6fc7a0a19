// Command muscle-ctl inspects a running coupled simulation: it pulls queued
// messages from a post office and resolves peer endpoints from a model file.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
