package main

import (
	"os"

	"github.com/go-i2p/nostr-onion/lib/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
