// dumpsift analyses Samsung/Android diagnostic artifacts.
//
// Usage:
//
//	dumpsift analyze <path...> [--events=<file|->] [--summary=<file>] [--rules=<file>]
//	dumpsift classify <path...>
//	dumpsift rules validate <file>
//	dumpsift rules list [--rules=<file>]
//	dumpsift categorize --title=<text> [--content=<text>]
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
