package storage

import (
	"context"
	"time"

	"announceq/internal/announce"
	"announceq/internal/eventbus"
	logx "announceq/pkg/logx"
)

// RunRecorder subscribes to the bus and journals pipeline events until ctx
// is done. Writes are best-effort: a failed insert is logged and the event
// is lost, the pipeline itself is never blocked (the bus drops on a slow
// subscriber rather than applying backpressure).
func RunRecorder(ctx context.Context, bus eventbus.Bus, st Store, log logx.Logger) {
	if bus == nil || st == nil {
		return
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	ch, unsub := bus.Subscribe(256)
	defer unsub()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			qe, isQueueEvent := ev.Data.(announce.QueueEvent)
			if !isQueueEvent {
				continue
			}
			switch ev.Type {
			case announce.EventSent, announce.EventFailed, announce.EventRejected, announce.EventEvicted:
			default:
				// queued is too chatty to journal
				continue
			}

			wctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			err := st.AppendDelivery(wctx, DeliveryEntry{
				At:         ev.Time,
				Key:        qe.Key,
				SessionKey: qe.SessionKey,
				OriginKey:  qe.OriginKey,
				Event:      ev.Type,
				Items:      qe.Items,
				Error:      qe.Error,
			})
			cancel()
			if err != nil {
				log.Warn("delivery journal write failed", logx.String("event", ev.Type), logx.Err(err))
			}
		}
	}
}
