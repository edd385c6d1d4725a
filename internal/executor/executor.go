// Package executor drives an ordered list of idempotent steps against the
// selected target hosts.
package executor

import (
	"context"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/eniac111/hostprep/internal/inventory"
	"github.com/eniac111/hostprep/internal/remote"
	"github.com/eniac111/hostprep/internal/steps"
)

// DialFunc opens a runner for one target host.
type DialFunc func(ctx context.Context, h inventory.Host) (remote.Runner, error)

// Executor applies its step list, in order, to each selected host. Hosts
// are independent of each other; a failure on one does not stop the others.
type Executor struct {
	Dial  DialFunc
	Steps []steps.Step
	// Forks caps how many hosts are provisioned at once. Values below 2
	// mean strictly sequential execution.
	Forks int
	Log   *log.Entry
}

// Run provisions every host and returns the per-step results along with an
// aggregate error covering the hosts that failed.
func (e *Executor) Run(ctx context.Context, hosts []inventory.Host) ([]steps.Result, error) {
	if e.Forks > 1 && len(hosts) > 1 {
		return e.runParallel(ctx, hosts)
	}

	var all []steps.Result
	var runErr *multierror.Error
	for _, h := range hosts {
		results, err := e.runHost(ctx, h)
		all = append(all, results...)
		if err != nil {
			runErr = multierror.Append(runErr, err)
		}
	}
	return all, runErr.ErrorOrNil()
}

func (e *Executor) runParallel(ctx context.Context, hosts []inventory.Host) ([]steps.Result, error) {
	var mu sync.Mutex
	var all []steps.Result
	var runErr *multierror.Error

	sem := make(chan struct{}, e.Forks)
	var wg sync.WaitGroup
	for _, h := range hosts {
		wg.Add(1)
		go func(h inventory.Host) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			results, err := e.runHost(ctx, h)
			mu.Lock()
			defer mu.Unlock()
			all = append(all, results...)
			if err != nil {
				runErr = multierror.Append(runErr, err)
			}
		}(h)
	}
	wg.Wait()
	return all, runErr.ErrorOrNil()
}

// runHost applies the step list to a single host, strictly in order. The
// first failing step aborts the host's run; nothing is rolled back.
func (e *Executor) runHost(ctx context.Context, h inventory.Host) ([]steps.Result, error) {
	r, err := e.Dial(ctx, h)
	if err != nil {
		return nil, &remote.ConnectionError{Host: h.Name, Cause: err}
	}
	defer r.Close()

	logger := e.logger().WithField("host", h.Name)

	var results []steps.Result
	for _, st := range e.Steps {
		changed, err := st.Run(ctx, r)
		if err != nil {
			var escalation *remote.PrivilegeEscalationError
			if errors.As(err, &escalation) {
				return results, err
			}
			return results, &steps.StepError{Step: st.Name(), Host: h.Name, Cause: err}
		}
		logger.WithFields(log.Fields{"step": st.Name(), "changed": changed}).Info("step complete")
		results = append(results, steps.Result{Step: st.Name(), Host: h.Name, Changed: changed})
	}
	return results, nil
}

func (e *Executor) logger() *log.Entry {
	if e.Log != nil {
		return e.Log
	}
	return log.NewEntry(log.StandardLogger())
}
