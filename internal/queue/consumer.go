package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	amqp "github.com/rabbitmq/amqp091-go"
)

// AuditConsumer binds a durable queue to every routing key of the events
// exchange and appends one line per event to a log file.
type AuditConsumer struct {
	URL      string
	Exchange string
	Queue    string
	LogPath  string
}

// Run connects, consumes and reconnects until ctx is cancelled.  It only
// returns ctx.Err().
func (c *AuditConsumer) Run(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 30 * time.Second
	for {
		conn, err := amqp.Dial(c.URL)
		if err != nil {
			wait := b.NextBackOff()
			log.Printf("audit-consumer: failed to dial broker: %v; retrying in %s", err, wait)
			if !sleep(ctx, wait) {
				return ctx.Err()
			}
			continue
		}
		b.Reset()

		err = c.consumeLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Printf("audit-consumer: consume loop ended: %v; reconnecting", err)
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (c *AuditConsumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		log.Printf("audit-consumer: set QoS failed: %v", err)
	}
	if err := declareExchange(ch, c.Exchange); err != nil {
		return err
	}
	q, err := ch.QueueDeclare(c.Queue, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	if err := ch.QueueBind(q.Name, "#", c.Exchange, false, nil); err != nil {
		return fmt.Errorf("queue bind: %w", err)
	}
	msgs, err := ch.ConsumeWithContext(ctx, q.Name, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for d := range msgs {
		if err := c.handle(d.Body); err != nil {
			log.Printf("audit-consumer: handle message failed: %v", err)
			_ = d.Nack(false, false) // reject without requeue to avoid a hot loop
			continue
		}
		_ = d.Ack(false)
	}
	return errors.New("deliveries channel closed")
}

func (c *AuditConsumer) handle(body []byte) error {
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if dir := filepath.Dir(c.LogPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir logs: %w", err)
		}
	}
	f, err := os.OpenFile(c.LogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()
	return WriteAuditLine(f, ev)
}

// WriteAuditLine renders ev as a single human-readable line.
func WriteAuditLine(w io.Writer, ev Event) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s | event_id=%s", ev.OccurredAt.UTC().Format(time.RFC3339), ev.Type, ev.ID)
	if ev.Account != "" {
		fmt.Fprintf(&sb, " | account=%s", ev.Account)
	}
	if ev.ReservationID != 0 {
		fmt.Fprintf(&sb, " | reservation_id=%d", ev.ReservationID)
	}
	if ev.SlotID != 0 {
		fmt.Fprintf(&sb, " | slot_id=%d", ev.SlotID)
	}
	if ev.ScheduleID != 0 {
		fmt.Fprintf(&sb, " | schedule_id=%d", ev.ScheduleID)
	}
	if ev.CreditDelta != 0 {
		fmt.Fprintf(&sb, " | credit_delta=%d", ev.CreditDelta)
	}
	if ev.CreditScore != nil {
		fmt.Fprintf(&sb, " | credit_score=%d", *ev.CreditScore)
	}
	if ev.Count != 0 {
		fmt.Fprintf(&sb, " | count=%d", ev.Count)
	}
	if ev.Detail != "" {
		fmt.Fprintf(&sb, " | detail=%q", ev.Detail)
	}
	sb.WriteByte('\n')
	_, err := io.WriteString(w, sb.String())
	return err
}
