// Package confirm gates destructive actions behind an injected
// confirmation capability. The default answer is always no: overwriting
// an overlay, recreating the network or running a full reset only
// proceeds when someone explicitly says yes.
package confirm

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Confirmer decides whether a destructive action may proceed.
type Confirmer interface {
	// Confirm asks about one action, described in plain words
	// (e.g. "overwrite overlay /path/vm1.qcow2").
	Confirm(action string) bool
}

type denyAll struct{}

func (denyAll) Confirm(string) bool { return false }

// Deny returns a Confirmer that refuses every action. This is the safe
// default for non-interactive and test contexts.
func Deny() Confirmer { return denyAll{} }

type acceptAll struct{}

func (acceptAll) Confirm(string) bool { return true }

// Accept returns a Confirmer that approves every action, for callers
// that passed an explicit --yes style flag.
func Accept() Confirmer { return acceptAll{} }

type terminal struct {
	in  *os.File
	out io.Writer
}

// Terminal returns a Confirmer that prompts on out and reads the answer
// from in. When in is not a TTY every action is denied, so piping input
// into the tool can never approve a destructive step by accident.
func Terminal(in *os.File, out io.Writer) Confirmer {
	return &terminal{in: in, out: out}
}

func (t *terminal) Confirm(action string) bool {
	if !term.IsTerminal(int(t.in.Fd())) {
		fmt.Fprintf(t.out, "%s: declined (non-interactive input)\n", action)
		return false
	}

	fmt.Fprintf(t.out, "%s? [y/N]: ", action)

	reader := bufio.NewReader(t.in)
	answer, err := reader.ReadString('\n')
	if err != nil {
		return false
	}

	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}
