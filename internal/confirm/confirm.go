// Package confirm is the user-facing decision surface for live instance
// collisions. The guard never replaces a live instance without a Choice
// coming out of one of these confirmers.
package confirm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/graydot/potter/internal/buildinfo"
	"github.com/graydot/potter/internal/collision"
)

// Choice is the user's answer to a collision prompt.
type Choice string

const (
	Replace Choice = "replace"
	Keep    Choice = "keep"
	Abort   Choice = "abort"
)

// ParseChoice parses a confirmer answer. Only the first token counts, so a
// dialog command may print trailing detail.
func ParseChoice(s string) (Choice, error) {
	tok := strings.ToLower(strings.TrimSpace(s))
	if i := strings.IndexAny(tok, " \t\n"); i >= 0 {
		tok = tok[:i]
	}
	switch Choice(tok) {
	case Replace, Keep, Abort:
		return Choice(tok), nil
	}
	return "", fmt.Errorf("unrecognized confirmation answer %q", s)
}

// Confirmer asks what to do about a live collision. Implementations must
// honor ctx: its deadline bounds how long the user may be kept waiting.
type Confirmer interface {
	Confirm(ctx context.Context, c collision.Classification) (Choice, error)
}

// Auto answers every prompt with a fixed choice. Used for headless runs and
// for policies configured to replace or keep without asking.
type Auto struct{ Choice Choice }

func (a Auto) Confirm(_ context.Context, _ collision.Classification) (Choice, error) {
	if a.Choice == "" {
		return "", errors.New("auto confirmer without a choice")
	}
	return a.Choice, nil
}

// Func adapts a plain function into a Confirmer.
type Func func(ctx context.Context, c collision.Classification) (Choice, error)

func (f Func) Confirm(ctx context.Context, c collision.Classification) (Choice, error) {
	return f(ctx, c)
}

// Command runs an external dialog command and reads the choice from its
// stdout. The collision is passed through POTTER_COLLISION_* environment
// variables so the command can render a meaningful prompt.
type Command struct {
	Command string
	Env     []string // extra KEY=VALUE pairs appended to the environment
}

func (d Command) Confirm(ctx context.Context, c collision.Classification) (Choice, error) {
	if strings.TrimSpace(d.Command) == "" {
		return "", errors.New("empty confirm command")
	}
	cmd := buildShellAwareCommand(ctx, d.Command)
	cmd.Env = append(os.Environ(), d.Env...)
	cur := buildinfo.Get()
	cmd.Env = append(cmd.Env,
		"POTTER_COLLISION_KIND="+string(c.Kind),
		"POTTER_COLLISION_DETAIL="+c.Detail,
		"POTTER_CURRENT_BUILD="+cur.ID(),
		"POTTER_CURRENT_VERSION="+cur.Version,
	)
	if c.Prior.Process != nil {
		cmd.Env = append(cmd.Env, "POTTER_PRIOR_PID="+strconv.Itoa(c.Prior.Process.PID))
	}
	if c.Prior.Build != nil {
		cmd.Env = append(cmd.Env, "POTTER_PRIOR_BUILD="+c.Prior.Build.BuildID)
		if c.Prior.Build.Version != "" {
			cmd.Env = append(cmd.Env, "POTTER_PRIOR_VERSION="+c.Prior.Build.Version)
		}
	}

	out, err := cmd.Output()
	if ctx.Err() != nil {
		// Deadline or shutdown wins over whatever the command reported.
		return "", ctx.Err()
	}
	if err != nil {
		return "", fmt.Errorf("confirm command: %w", err)
	}
	return ParseChoice(string(out))
}
