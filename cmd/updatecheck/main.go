// Command updatecheck reports whether a newer version of an npm package is
// published.
//
//	updatecheck                          # nearest package.json
//	updatecheck ./path/to/package.json
//	updatecheck pkg:npm/%40scope/name@1.2.3 --dist-tag next
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
