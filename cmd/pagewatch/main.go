// Command pagewatch is the page-watch engine's entrypoint: serve boots the
// engine and its Command/Query API, migrate applies pending Config Store
// schema changes, and status queries a running instance. Grounded on the
// teacher's two separate cmd/server and cmd/migrate binaries, unified
// here into one cobra root the way a single coherent service binary
// would ship it.
package main

import (
	"fmt"
	"os"

	"github.com/vitaliisemenov/pagewatch/cmd/pagewatch/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
