package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/fang"

	"github.com/matzehuels/rezls/pkg/buildinfo"
)

// versionString returns the version shown by --version.
func versionString() string {
	if buildinfo.Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", buildinfo.Version, buildinfo.Commit, buildinfo.Date)
}

// Execute runs the rezls CLI and returns an error if any command fails.
//
// Logging goes to stderr at info level; --verbose (-v) or log.level in the
// config changes it. Interrupts cancel ctx, which every command observes.
//
//	func main() {
//	    if err := cli.Execute(context.Background()); err != nil {
//	        os.Exit(1)
//	    }
//	}
func Execute(ctx context.Context) error {
	c := New(os.Stderr, LogInfo)
	return fang.Execute(ctx, c.RootCommand(),
		fang.WithVersion(versionString()),
		fang.WithNotifySignal(os.Interrupt),
	)
}
