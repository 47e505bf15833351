// Command seqsync edits, plays and records motion-notation sequences.
package main

import (
	"fmt"
	"os"

	"github.com/kilosayaw/seqsync-sub000/internal/cli"
)

func main() {
	err := cli.NewRootCommand().Execute()
	if err != nil && !cli.IsReported(err) {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(cli.GetExitCode(err))
}
