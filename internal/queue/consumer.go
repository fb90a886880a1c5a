package queue

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "os"
    "path/filepath"
    "time"

    "github.com/labstack/gommon/log"
    amqp "github.com/rabbitmq/amqp091-go"
)

// AuditFile is the file, inside the consumer's log directory, that receives
// one line per lifecycle event.
const AuditFile = "reservation.log"

// Consumer appends every lifecycle event to an audit log.
type Consumer struct {
    url    string
    dir    string
    logger *log.Logger
}

// NewConsumer returns a Consumer reading from the broker at url and writing
// to dir/reservation.log.
func NewConsumer(url, dir string, logger *log.Logger) *Consumer {
    if logger == nil {
        logger = log.New("events")
    }
    return &Consumer{url: url, dir: dir, logger: logger}
}

// Run connects to RabbitMQ, declares both event queues and consumes them
// until ctx is cancelled.  Broker failures are retried with exponential
// backoff capped at 30s; Run only returns ctx.Err().
func (c *Consumer) Run(ctx context.Context) error {
    backoff := time.Second
    for {
        conn, err := amqp.Dial(c.url)
        if err != nil {
            c.logger.Warnf("audit consumer: dial failed: %v; retrying in %s", err, backoff)
            if !sleep(ctx, backoff) {
                return ctx.Err()
            }
            if backoff < 30*time.Second {
                backoff *= 2
            }
            continue
        }
        backoff = time.Second // reset after successful connect

        err = c.consume(ctx, conn)
        _ = conn.Close()
        if ctx.Err() != nil {
            return ctx.Err()
        }
        c.logger.Warnf("audit consumer: consume loop ended: %v; reconnecting", err)
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

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("channel open: %w", err)
    }
    defer func() { _ = ch.Close() }()

    if err := ch.Qos(50, 0, false); err != nil {
        c.logger.Warnf("audit consumer: set QoS failed: %v", err)
    }
    if err := declareQueues(ch); err != nil {
        return err
    }
    reclaimed, err := ch.Consume(QueueHoldReclaimed, "", false, false, false, false, nil)
    if err != nil {
        return fmt.Errorf("consume %s: %w", QueueHoldReclaimed, err)
    }
    paid, err := ch.Consume(QueueReservationPaid, "", false, false, false, false, nil)
    if err != nil {
        return fmt.Errorf("consume %s: %w", QueueReservationPaid, err)
    }

    for {
        var (
            d  amqp.Delivery
            ok bool
        )
        select {
        case <-ctx.Done():
            return ctx.Err()
        case d, ok = <-reclaimed:
        case d, ok = <-paid:
        }
        if !ok {
            return errors.New("deliveries channel closed")
        }
        if err := c.handle(d.RoutingKey, d.Body); err != nil {
            c.logger.Errorf("audit consumer: handle message failed: %v", err)
            _ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
            continue
        }
        _ = d.Ack(false)
    }
}

func (c *Consumer) handle(queue string, body []byte) error {
    line, err := FormatEvent(queue, body)
    if err != nil {
        return err
    }
    if err := os.MkdirAll(c.dir, 0o755); err != nil {
        return fmt.Errorf("mkdir %s: %w", c.dir, err)
    }
    f, err := os.OpenFile(filepath.Join(c.dir, AuditFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
    if err != nil {
        return fmt.Errorf("open audit log: %w", err)
    }
    defer f.Close()
    if _, err := f.WriteString(line); err != nil {
        return fmt.Errorf("write audit log: %w", err)
    }
    return nil
}

// FormatEvent renders one event as a single audit line terminated by a
// newline.  queue selects the payload type.
func FormatEvent(queue string, body []byte) (string, error) {
    switch queue {
    case QueueHoldReclaimed:
        var ev HoldReclaimedEvent
        if err := json.Unmarshal(body, &ev); err != nil {
            return "", fmt.Errorf("unmarshal %s: %w", queue, err)
        }
        return fmt.Sprintf("[%s] Hold reclaimed | hold_id=%d | holder_id=%d | ticket_id=%d | seat=%d | held_until=%s\n",
            ev.ReclaimedAt.Format(time.RFC3339), ev.HoldID, ev.HolderID, ev.TicketID, ev.SeatNumber,
            ev.HeldUntil.Format(time.RFC3339)), nil
    case QueueReservationPaid:
        var ev ReservationPaidEvent
        if err := json.Unmarshal(body, &ev); err != nil {
            return "", fmt.Errorf("unmarshal %s: %w", queue, err)
        }
        return fmt.Sprintf("[%s] Reservation paid | hold_id=%d | holder_id=%d | ticket_id=%d | seat=%d | method=%s | amount=%d\n",
            ev.PaidAt.Format(time.RFC3339), ev.HoldID, ev.HolderID, ev.TicketID, ev.SeatNumber,
            ev.PaymentMethod, ev.AmountPaid), nil
    }
    return "", fmt.Errorf("unknown queue %q", queue)
}
