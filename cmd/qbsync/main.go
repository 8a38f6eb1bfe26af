// Command qbsync serves the QuickBooks Web Connector endpoint that delivers
// ledger inventory events into QuickBooks Desktop.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
