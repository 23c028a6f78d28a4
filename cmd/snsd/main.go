// snsd - HTTP endpoint for Amazon SNS subscriptions
package main

import (
	"fmt"
	"os"

	"github.com/getmockd/snsd/pkg/cli"
)

func main() {
	if err := cli.Execute(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
