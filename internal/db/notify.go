package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"cbt-companion/internal/logger"
	"cbt-companion/pkg"
)

// RiskAlert is the payload published on the alert channel whenever a turn's
// risk assessment escalates. Therapist dashboards subscribe to it.
type RiskAlert struct {
	SessionID string        `json:"session_id"`
	Level     pkg.RiskLevel `json:"level"`
	Triggers  []string      `json:"triggers"`
}

// Notifier publishes and subscribes to risk alerts over PostgreSQL
// LISTEN/NOTIFY. The channel name comes from RISK_ALERT_CHANNEL.
type Notifier struct {
	DB      *sql.DB
	DSN     string
	Channel string
	Log     *logger.Logger
}

func NewNotifier(db *sql.DB, dsn, channel string, log *logger.Logger) *Notifier {
	return &Notifier{DB: db, DSN: dsn, Channel: channel, Log: log}
}

// Notify publishes a risk alert on the channel. pg_notify is used instead of
// the NOTIFY statement because NOTIFY does not accept bind parameters.
func (n *Notifier) Notify(ctx context.Context, alert RiskAlert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("encode alert: %w", err)
	}
	_, err = n.DB.ExecContext(ctx, `SELECT pg_notify($1, $2)`, n.Channel, string(payload))
	return err
}

// Listen subscribes to the alert channel on a dedicated connection and yields
// alerts until the context is cancelled. Malformed payloads are logged and
// skipped.
func (n *Notifier) Listen(ctx context.Context) (<-chan RiskAlert, error) {
	listener := pq.NewListener(n.DSN, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			n.Log.Warn("risk alert listener event", "event", ev, "error", err)
		}
	})
	if err := listener.Listen(n.Channel); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("listen on %s: %w", n.Channel, err)
	}

	ch := make(chan RiskAlert)
	go func() {
		defer func() {
			_ = listener.Close()
			close(ch)
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case note, ok := <-listener.Notify:
				if !ok {
					return
				}
				if note == nil {
					// Reconnect marker from the driver.
					continue
				}
				var alert RiskAlert
				if err := json.Unmarshal([]byte(note.Extra), &alert); err != nil {
					n.Log.Warn("discarding malformed risk alert", "payload", note.Extra, "error", err)
					continue
				}
				select {
				case ch <- alert:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return ch, nil
}
