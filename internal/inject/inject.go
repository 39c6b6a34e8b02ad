// Package inject delivers router actions to the device through the shell
// input tool.
package inject

import (
	"context"
	"os/exec"
	"strconv"
	"strings"

	apperr "github.com/GriffinCanCode/hotpath/internal/errors"
	"github.com/GriffinCanCode/hotpath/internal/router"
	"github.com/GriffinCanCode/hotpath/internal/rules"
	"github.com/GriffinCanCode/hotpath/internal/trace"
)

// Source yields actions to perform, blocking until one is ready.
type Source interface {
	NextAction(ctx context.Context) (router.Action, bool)
}

type runFunc func(ctx context.Context, name string, args ...string) error

// Injector runs `input tap` and `input swipe` for each action.
type Injector struct {
	tool string
	run  runFunc
}

// New creates an injector using the input tool at path, "input" when empty.
func New(path string) *Injector {
	if path == "" {
		path = "input"
	}
	return &Injector{tool: path, run: runCommand}
}

func runCommand(ctx context.Context, name string, args ...string) error {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return apperr.Wrap(err, apperr.CodeUnavailable, "input command failed").
			WithMetadata("output", strings.TrimSpace(string(out)))
	}
	return nil
}

// Args returns the input tool arguments for a, or nil for actions with no
// gesture.
func Args(a router.Action) []string {
	itoa := func(v int32) string { return strconv.Itoa(int(v)) }
	switch a.Type {
	case rules.ActionTap:
		return []string{"tap", itoa(a.X1), itoa(a.Y1)}
	case rules.ActionSwipe:
		return []string{"swipe", itoa(a.X1), itoa(a.Y1), itoa(a.X2), itoa(a.Y2), itoa(a.DurationMs)}
	default:
		return nil
	}
}

// Perform injects one action.
func (i *Injector) Perform(ctx context.Context, a router.Action) error {
	args := Args(a)
	if args == nil {
		return nil
	}
	return i.run(ctx, i.tool, args...)
}

// Run performs actions from src until ctx ends or src closes.
func (i *Injector) Run(ctx context.Context, src Source) {
	log := trace.Logger(ctx)
	for {
		a, ok := src.NextAction(ctx)
		if !ok {
			return
		}
		if err := i.Perform(ctx, a); err != nil {
			log.Warn("inject action failed", "action", a.Type, "rule", a.RuleIndex, "error", err)
			continue
		}
		log.Debug("action injected", "action", a.Type, "rule", a.RuleIndex)
	}
}
