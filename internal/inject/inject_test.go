package inject

import (
	"context"
	"errors"
	"reflect"
	"testing"

	apperr "github.com/GriffinCanCode/hotpath/internal/errors"
	"github.com/GriffinCanCode/hotpath/internal/router"
	"github.com/GriffinCanCode/hotpath/internal/rules"
)

func TestArgs(t *testing.T) {
	tests := []struct {
		name string
		a    router.Action
		want []string
	}{
		{"tap", router.Action{Type: rules.ActionTap, X1: 540, Y1: 1200}, []string{"tap", "540", "1200"}},
		{"swipe", router.Action{Type: rules.ActionSwipe, X1: 1, Y1: 2, X2: 3, Y2: 4, DurationMs: 300},
			[]string{"swipe", "1", "2", "3", "4", "300"}},
		{"wait", router.Action{Type: rules.ActionWait}, nil},
		{"complete", router.Action{Type: rules.ActionComplete}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Args(tt.a); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Args() = %v, want %v", got, tt.want)
			}
		})
	}
}

type queue struct{ actions []router.Action }

func (q *queue) NextAction(context.Context) (router.Action, bool) {
	if len(q.actions) == 0 {
		return router.Action{}, false
	}
	a := q.actions[0]
	q.actions = q.actions[1:]
	return a, true
}

func TestRun(t *testing.T) {
	var calls [][]string
	i := New("")
	i.run = func(_ context.Context, name string, args ...string) error {
		calls = append(calls, append([]string{name}, args...))
		if args[0] == "swipe" {
			return errors.New("device busy")
		}
		return nil
	}

	i.Run(context.Background(), &queue{actions: []router.Action{
		{Type: rules.ActionSwipe, X2: 1, Y2: 1},
		{Type: rules.ActionWait},
		{Type: rules.ActionTap, X1: 5, Y1: 6},
	}})

	want := [][]string{
		{"input", "swipe", "0", "0", "1", "1", "0"},
		{"input", "tap", "5", "6"},
	}
	if !reflect.DeepEqual(calls, want) {
		t.Errorf("calls = %v, want %v", calls, want)
	}
}

func TestRunCommandFailure(t *testing.T) {
	i := New("false")
	err := i.Perform(context.Background(), router.Action{Type: rules.ActionTap})
	if !apperr.IsCode(err, apperr.CodeUnavailable) {
		t.Errorf("Perform() = %v, want Unavailable", err)
	}
}
