package health

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultCheckTimeout bounds one CheckAll run.
const DefaultCheckTimeout = 10 * time.Second

// Aggregator runs registered checkers and combines their results.
type Aggregator struct {
	timeout  time.Duration
	mu       sync.RWMutex
	checkers map[string]Checker
	order    []string
}

// NewAggregator creates an aggregator. A non-positive timeout selects
// DefaultCheckTimeout.
func NewAggregator(timeout ...time.Duration) *Aggregator {
	t := DefaultCheckTimeout
	if len(timeout) > 0 && timeout[0] > 0 {
		t = timeout[0]
	}
	return &Aggregator{timeout: t, checkers: make(map[string]Checker)}
}

// Register adds checker under its name, replacing an earlier one.
func (a *Aggregator) Register(checker Checker) {
	a.mu.Lock()
	defer a.mu.Unlock()

	name := checker.Name()
	if _, exists := a.checkers[name]; !exists {
		a.order = append(a.order, name)
	}
	a.checkers[name] = checker
}

// CheckerNames returns the registered names in registration order.
func (a *Aggregator) CheckerNames() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]string(nil), a.order...)
}

// Check runs a single named checker.
func (a *Aggregator) Check(ctx context.Context, name string) (Result, error) {
	a.mu.RLock()
	checker, ok := a.checkers[name]
	a.mu.RUnlock()
	if !ok {
		return Result{}, ErrCheckerNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	return runCheck(ctx, checker), nil
}

// CheckAll runs every checker in parallel and returns results by name.
func (a *Aggregator) CheckAll(ctx context.Context) map[string]Result {
	a.mu.RLock()
	checkers := make([]Checker, 0, len(a.order))
	for _, name := range a.order {
		checkers = append(checkers, a.checkers[name])
	}
	a.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	results := make(map[string]Result, len(checkers))
	var mu sync.Mutex
	var g errgroup.Group
	for _, checker := range checkers {
		g.Go(func() error {
			result := runCheck(ctx, checker)
			mu.Lock()
			results[checker.Name()] = result
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// OverallStatus returns the worst status among results. No results is healthy.
func OverallStatus(results map[string]Result) Status {
	overall := StatusHealthy
	for _, r := range results {
		if r.Status > overall {
			overall = r.Status
		}
	}
	return overall
}

func runCheck(ctx context.Context, checker Checker) Result {
	start := time.Now()
	resultCh := make(chan Result, 1)

	go func() {
		result := checker.Check(ctx)
		result.Duration = time.Since(start)
		if result.Timestamp.IsZero() {
			result.Timestamp = start
		}
		resultCh <- result
	}()

	select {
	case result := <-resultCh:
		return result
	case <-ctx.Done():
		return Result{
			Status:    StatusUnhealthy,
			Message:   "check timed out",
			Error:     ErrCheckTimeout,
			Duration:  time.Since(start),
			Timestamp: start,
		}
	}
}

// Checker exposes the aggregator as a single checker named "cache".
func (a *Aggregator) Checker() Checker {
	return NewCheckerFunc("cache", func(ctx context.Context) Result {
		results := a.CheckAll(ctx)
		status := OverallStatus(results)

		details := make(map[string]any, len(results))
		for name, r := range results {
			details[name] = map[string]any{
				"status":   r.Status.String(),
				"message":  r.Message,
				"duration": r.Duration.String(),
			}
		}

		var message string
		switch status {
		case StatusHealthy:
			message = "all checks passed"
		case StatusDegraded:
			message = "some checks degraded"
		default:
			message = "some checks failed"
		}
		return Result{Status: status, Message: message, Details: details, Timestamp: time.Now()}
	})
}
