package app

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"strings"
	"time"

	"announceq/internal/announce"
	"announceq/internal/transport"
	logx "announceq/pkg/logx"
)

// submission is one announce request, read as a JSON line from stdin.
// Per-line settings override the configured defaults for that key.
type submission struct {
	Key     string `json:"key"`
	Prompt  string `json:"prompt"`
	Summary string `json:"summary,omitempty"`
	Session string `json:"session,omitempty"`

	Origin *struct {
		Channel  string `json:"channel,omitempty"`
		ChatID   int64  `json:"chat_id,omitempty"`
		ThreadID int    `json:"thread_id,omitempty"`
	} `json:"origin,omitempty"`

	Mode       string `json:"mode,omitempty"`
	DebounceMS *int   `json:"debounce_ms,omitempty"`
	Cap        *int   `json:"cap,omitempty"`
	DropPolicy string `json:"drop_policy,omitempty"`
}

// readStdin feeds stdin submissions into the registry until EOF or ctx
// cancellation. Malformed lines are logged and skipped.
func (a *App) readStdin(ctx context.Context) {
	sc := bufio.NewScanner(os.Stdin)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for sc.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		var sub submission
		if err := json.Unmarshal([]byte(line), &sub); err != nil {
			a.log.Warn("bad submission line", logx.Err(err))
			continue
		}
		if sub.Key == "" || sub.Prompt == "" {
			a.log.Warn("submission missing key or prompt")
			continue
		}

		it := &announce.Item{
			Prompt:      sub.Prompt,
			SummaryLine: sub.Summary,
			SessionKey:  sub.Session,
			EnqueuedAt:  time.Now(),
		}
		if sub.Origin != nil {
			it.Origin = &transport.Origin{
				Channel:  sub.Origin.Channel,
				ChatID:   sub.Origin.ChatID,
				ThreadID: sub.Origin.ThreadID,
			}
		}

		accepted := a.reg.Enqueue(sub.Key, it, a.settingsFor(sub), a.send)
		if !accepted {
			a.log.Debug("submission rejected: backlog at capacity",
				logx.String("key", sub.Key))
		}
	}
	if err := sc.Err(); err != nil && ctx.Err() == nil {
		a.log.Warn("stdin intake stopped", logx.Err(err))
	}
}

// settingsFor merges the configured defaults with the submission's own
// overrides into one settings record.
func (a *App) settingsFor(sub submission) announce.Settings {
	a.mu.Lock()
	s := a.defaults
	a.mu.Unlock()

	if sub.Mode != "" {
		s.Mode = announce.Mode(sub.Mode)
	}
	if sub.DebounceMS != nil {
		d := time.Duration(*sub.DebounceMS) * time.Millisecond
		s.Debounce = &d
	}
	if sub.Cap != nil {
		s.Cap = sub.Cap
	}
	if sub.DropPolicy != "" {
		s.DropPolicy = announce.DropPolicy(sub.DropPolicy)
	}
	return s
}
