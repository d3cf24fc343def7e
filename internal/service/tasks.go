package service

import (
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// taskGroup runs the side effects of one lifecycle operation concurrently.
// Required tasks report their error from Wait; best-effort tasks are logged,
// counted and never fail the group.
type taskGroup struct {
	g   errgroup.Group
	log *zap.Logger
}

func newTaskGroup(log *zap.Logger) *taskGroup {
	return &taskGroup{log: log}
}

// Require runs fn; its error is returned by Wait.
func (t *taskGroup) Require(name string, fn func() error) {
	t.g.Go(func() error {
		if err := fn(); err != nil {
			t.log.Error("required task failed", zap.String("task", name), zap.Error(err))
			return err
		}
		return nil
	})
}

// Try runs fn and swallows its error.
func (t *taskGroup) Try(name string, fn func() error) {
	t.g.Go(func() error {
		if err := fn(); err != nil {
			sideEffectFailuresTotal.WithLabelValues(name).Inc()
			t.log.Warn("best-effort task failed", zap.String("task", name), zap.Error(err))
		}
		return nil
	})
}

// Wait blocks until every task finished and returns the first required
// task error.
func (t *taskGroup) Wait() error {
	return t.g.Wait()
}
