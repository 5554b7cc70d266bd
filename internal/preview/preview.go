// Package preview implements the `screenruster preview` CLI
// subcommand. It is explicitly out of core scope per spec.md §1: it
// contains no state-machine logic and is never driven by the
// Coordinator. It exists only so the CLI surface in spec.md §6 is
// complete.
package preview

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/rs/zerolog"

	"github.com/screenruster/screenruster/internal/config"
)

// Run execs the named saver in the foreground, inheriting the
// controlling terminal's stdio instead of talking the JSON wire
// protocol internal/saver uses. It passes the saver's [saver.NAME]
// config subtable as command-line flags; the daemon instead sends
// that subtable as a JSON config message and passes no arguments.
func Run(cfg config.Saver, name string, log zerolog.Logger) error {
	sub := cfg.Get(name)
	args := saverArgs(sub)

	log.Info().Str("saver", name).Strs("args", args).Msg("previewing saver")
	fmt.Fprintf(os.Stderr, "previewing %q; press ctrl-c to stop\n", name)

	cmd := exec.Command(name, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// saverArgs turns a [saver.NAME] subtable into --key=value flags, in
// map iteration order. cmd/screenruster's Config.SaverArgs does not
// use it and returns no arguments.
func saverArgs(sub map[string]interface{}) []string {
	var args []string
	for k, v := range sub {
		args = append(args, fmt.Sprintf("--%s=%v", k, v))
	}
	return args
}
