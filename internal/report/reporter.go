// Package report logs a periodic snapshot of the announce registry on a
// cron schedule, for operators watching backlog health.
package report

import (
	"github.com/robfig/cron/v3"

	"announceq/internal/announce"
	logx "announceq/pkg/logx"
)

type Reporter struct {
	c   *cron.Cron
	reg *announce.Registry
	log logx.Logger
}

// New builds a reporter for the given cron spec (standard 5-field syntax).
func New(schedule string, reg *announce.Registry, log logx.Logger) (*Reporter, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Reporter{reg: reg, log: log}
	c := cron.New()
	if _, err := c.AddFunc(schedule, r.report); err != nil {
		return nil, err
	}
	r.c = c
	return r, nil
}

func (r *Reporter) Start() { r.c.Start() }

// Stop halts the schedule and waits for an in-flight report to finish.
func (r *Reporter) Stop() { <-r.c.Stop().Done() }

func (r *Reporter) report() {
	snap := r.reg.Snapshot()
	if len(snap) == 0 {
		r.log.Debug("announce queues idle")
		return
	}

	pending, dropped, draining := 0, 0, 0
	for _, s := range snap {
		pending += s.Pending
		dropped += s.Dropped
		if s.Draining {
			draining++
		}
	}
	r.log.Info("announce queue snapshot",
		logx.Int("keys", len(snap)),
		logx.Int("pending", pending),
		logx.Int("dropped_pending", dropped),
		logx.Int("draining", draining),
	)
	for _, s := range snap {
		r.log.Debug("announce queue",
			logx.String("key", s.Key),
			logx.Int("pending", s.Pending),
			logx.Int("dropped_pending", s.Dropped),
			logx.Bool("draining", s.Draining),
			logx.String("mode", string(s.Mode)),
		)
	}
}
