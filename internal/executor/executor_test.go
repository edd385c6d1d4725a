package executor_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eniac111/hostprep/internal/executor"
	"github.com/eniac111/hostprep/internal/inventory"
	"github.com/eniac111/hostprep/internal/remote"
	"github.com/eniac111/hostprep/internal/remote/remotetest"
	"github.com/eniac111/hostprep/internal/steps"
)

type fakeStep struct {
	name    string
	changed bool
	err     error
	cmd     string // recorded on the runner so ordering can be asserted
}

func (s fakeStep) Name() string { return s.name }

func (s fakeStep) Run(ctx context.Context, r remote.Runner) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	if s.cmd != "" {
		_, _, _ = r.Run(ctx, s.cmd)
	}
	return s.changed, nil
}

func dialFakes(runners map[string]*remotetest.FakeRunner) executor.DialFunc {
	return func(_ context.Context, h inventory.Host) (remote.Runner, error) {
		f := remotetest.NewFakeRunner()
		runners[h.Name] = f
		return f, nil
	}
}

func TestRunAppliesStepsInOrder(t *testing.T) {
	runners := map[string]*remotetest.FakeRunner{}
	ex := &executor.Executor{
		Dial: dialFakes(runners),
		Steps: []steps.Step{
			fakeStep{name: "first", changed: true, cmd: "step-one"},
			fakeStep{name: "second", cmd: "step-two"},
		},
	}

	results, err := ex.Run(context.Background(), []inventory.Host{{Name: "ci-host-1"}})
	require.NoError(t, err)

	require.Len(t, results, 2)
	assert.Equal(t, steps.Result{Step: "first", Host: "ci-host-1", Changed: true}, results[0])
	assert.Equal(t, steps.Result{Step: "second", Host: "ci-host-1", Changed: false}, results[1])

	f := runners["ci-host-1"]
	require.NotNil(t, f)
	assert.Equal(t, []string{"step-one", "step-two"}, f.Commands)
	assert.True(t, f.Closed)
}

func TestRunDialFailureIsConnectionError(t *testing.T) {
	dialErr := errors.New("ssh: handshake failed")
	ex := &executor.Executor{
		Dial: func(context.Context, inventory.Host) (remote.Runner, error) {
			return nil, dialErr
		},
		Steps: []steps.Step{fakeStep{name: "never-runs"}},
	}

	_, err := ex.Run(context.Background(), []inventory.Host{{Name: "ci-host-1"}})
	require.Error(t, err)

	var connErr *remote.ConnectionError
	require.True(t, errors.As(err, &connErr))
	assert.Equal(t, "ci-host-1", connErr.Host)
	assert.ErrorIs(t, err, dialErr)
}

func TestRunStepFailureStopsHost(t *testing.T) {
	runners := map[string]*remotetest.FakeRunner{}
	stepErr := errors.New("useradd: permission denied")
	ex := &executor.Executor{
		Dial: dialFakes(runners),
		Steps: []steps.Step{
			fakeStep{name: "first", changed: true, cmd: "step-one"},
			fakeStep{name: "second", err: stepErr},
			fakeStep{name: "third", cmd: "step-three"},
		},
	}

	results, err := ex.Run(context.Background(), []inventory.Host{{Name: "ci-host-1"}})
	require.Error(t, err)

	var failed *steps.StepError
	require.True(t, errors.As(err, &failed))
	assert.Equal(t, "second", failed.Step)
	assert.Equal(t, "ci-host-1", failed.Host)
	assert.ErrorIs(t, err, stepErr)

	// The first step's result survives; the third step never ran.
	require.Len(t, results, 1)
	assert.Equal(t, "first", results[0].Step)
	assert.Equal(t, -1, runners["ci-host-1"].CommandIndex("step-three"))
}

func TestRunPrivilegeEscalationErrorPassesThrough(t *testing.T) {
	runners := map[string]*remotetest.FakeRunner{}
	escalation := &remote.PrivilegeEscalationError{Host: "ci-host-1", Cause: errors.New("sudo: a password is required")}
	ex := &executor.Executor{
		Dial:  dialFakes(runners),
		Steps: []steps.Step{fakeStep{name: "first", err: escalation}},
	}

	_, err := ex.Run(context.Background(), []inventory.Host{{Name: "ci-host-1"}})
	require.Error(t, err)

	var got *remote.PrivilegeEscalationError
	require.True(t, errors.As(err, &got))

	var wrapped *steps.StepError
	assert.False(t, errors.As(err, &wrapped))
}

func TestRunContinuesToOtherHostsOnFailure(t *testing.T) {
	runners := map[string]*remotetest.FakeRunner{}
	ex := &executor.Executor{
		Dial: func(ctx context.Context, h inventory.Host) (remote.Runner, error) {
			if h.Name == "bad-host" {
				return nil, errors.New("no route to host")
			}
			return dialFakes(runners)(ctx, h)
		},
		Steps: []steps.Step{fakeStep{name: "only", changed: true, cmd: "step-one"}},
	}

	hosts := []inventory.Host{{Name: "bad-host"}, {Name: "ci-host-2"}}
	results, err := ex.Run(context.Background(), hosts)
	require.Error(t, err)

	require.Len(t, results, 1)
	assert.Equal(t, "ci-host-2", results[0].Host)
	assert.Equal(t, []string{"step-one"}, runners["ci-host-2"].Commands)
}

func TestRunParallelKeepsPerHostOrder(t *testing.T) {
	dialGate := make(chan struct{}, 1) // serialize map writes in Dial
	runners := map[string]*remotetest.FakeRunner{}
	ex := &executor.Executor{
		Dial: func(_ context.Context, h inventory.Host) (remote.Runner, error) {
			dialGate <- struct{}{}
			defer func() { <-dialGate }()
			f := remotetest.NewFakeRunner()
			runners[h.Name] = f
			return f, nil
		},
		Steps: []steps.Step{
			fakeStep{name: "first", cmd: "step-one"},
			fakeStep{name: "second", cmd: "step-two"},
			fakeStep{name: "third", cmd: "step-three"},
		},
		Forks: 3,
	}

	hosts := []inventory.Host{{Name: "h1"}, {Name: "h2"}, {Name: "h3"}}
	results, err := ex.Run(context.Background(), hosts)
	require.NoError(t, err)
	assert.Len(t, results, 9)

	for _, h := range hosts {
		f := runners[h.Name]
		require.NotNil(t, f, h.Name)
		assert.Equal(t, []string{"step-one", "step-two", "step-three"}, f.Commands, h.Name)
	}
}
