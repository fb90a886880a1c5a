package queue

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "sync/atomic"
    "time"

    "github.com/labstack/gommon/log"
    amqp "github.com/rabbitmq/amqp091-go"

    "github.com/iliyamo/transit-seat-reservation/internal/model"
)

const (
    defaultBuffer      = 256
    defaultDialTimeout = 3 * time.Second
    maxRedialDelay     = 30 * time.Second
    publishTimeout     = 2 * time.Second
    drainTimeout       = 5 * time.Second
)

var errRedialPending = errors.New("broker unavailable, redial pending")

type outbound struct {
    queue string
    body  []byte
}

// Publisher publishes lifecycle events.  HoldReclaimed and ReservationPaid
// only enqueue; Run owns the broker connection and sends in the background.
// When the buffer is full the event is dropped and logged, so a slow or
// unreachable broker never holds up a seat transition.
type Publisher struct {
    url         string
    logger      *log.Logger
    dialTimeout time.Duration
    events      chan outbound
    dropped     atomic.Uint64

    // owned by Run
    conn       *amqp.Connection
    ch         *amqp.Channel
    redialAt   time.Time
    redialWait time.Duration
}

type PublisherOption func(*Publisher)

// WithBuffer sets how many events may wait for the broker.
func WithBuffer(n int) PublisherOption {
    return func(p *Publisher) {
        if n > 0 {
            p.events = make(chan outbound, n)
        }
    }
}

// WithDialTimeout bounds the TCP connect and AMQP handshake.
func WithDialTimeout(d time.Duration) PublisherOption {
    return func(p *Publisher) {
        if d > 0 {
            p.dialTimeout = d
        }
    }
}

// NewPublisher returns a Publisher for the broker at url.  Nothing is sent
// until Run is started.
func NewPublisher(url string, logger *log.Logger, opts ...PublisherOption) *Publisher {
    if logger == nil {
        logger = log.New("events")
    }
    p := &Publisher{
        url:         url,
        logger:      logger,
        dialTimeout: defaultDialTimeout,
        events:      make(chan outbound, defaultBuffer),
    }
    for _, opt := range opts {
        opt(p)
    }
    return p
}

// Dropped reports how many events were discarded because the buffer was full.
func (p *Publisher) Dropped() uint64 { return p.dropped.Load() }

// HoldReclaimed publishes a hold.reclaimed event for the HELD seat s.
func (p *Publisher) HoldReclaimed(_ context.Context, s model.Seat, at time.Time) {
    ev := HoldReclaimedEvent{
        HoldID:      s.HoldID,
        TicketID:    s.TicketID,
        SeatNumber:  s.SeatNumber,
        HolderID:    s.HolderID,
        ReclaimedAt: at.UTC(),
    }
    if s.HeldUntil != nil {
        ev.HeldUntil = s.HeldUntil.UTC()
    }
    p.enqueue(QueueHoldReclaimed, ev)
}

// ReservationPaid publishes a reservation.paid event.
func (p *Publisher) ReservationPaid(_ context.Context, r model.Reservation) {
    p.enqueue(QueueReservationPaid, ReservationPaidEvent{
        HoldID:        r.HoldID,
        TicketID:      r.TicketID,
        SeatNumber:    r.SeatNumber,
        HolderID:      r.HolderID,
        PaymentMethod: string(r.PaymentMethod),
        AmountPaid:    r.AmountPaid,
        PaidAt:        r.PaidAt.UTC(),
    })
}

func (p *Publisher) enqueue(queue string, ev any) {
    body, err := json.Marshal(ev)
    if err != nil {
        p.logger.Errorj(log.JSON{"msg": "marshal event", "queue": queue, "error": err.Error()})
        return
    }
    select {
    case p.events <- outbound{queue: queue, body: body}:
    default:
        n := p.dropped.Add(1)
        p.logger.Warnj(log.JSON{"msg": "event dropped, publish buffer full", "queue": queue, "dropped_total": n})
    }
}

// Run sends queued events until ctx is cancelled, then makes one bounded
// attempt to flush what is still buffered.  It always returns ctx.Err().
func (p *Publisher) Run(ctx context.Context) error {
    defer p.reset()
    for {
        select {
        case <-ctx.Done():
            p.drain()
            return ctx.Err()
        case ev := <-p.events:
            p.send(ctx, ev)
        }
    }
}

func (p *Publisher) drain() {
    ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
    defer cancel()
    for ctx.Err() == nil {
        select {
        case ev := <-p.events:
            p.send(ctx, ev)
        default:
            return
        }
    }
}

func (p *Publisher) send(ctx context.Context, ev outbound) {
    if err := p.publish(ctx, ev); err != nil {
        p.logger.Warnj(log.JSON{"msg": "publish failed", "queue": ev.queue, "error": err.Error()})
    }
}

func (p *Publisher) publish(ctx context.Context, ev outbound) error {
    ch, err := p.channel()
    if err != nil {
        return err
    }
    ctx, cancel := context.WithTimeout(ctx, publishTimeout)
    defer cancel()
    err = ch.PublishWithContext(ctx,
        "",       // default exchange
        ev.queue, // routing key = queue name
        false,    // mandatory
        false,    // immediate
        amqp.Publishing{
            ContentType:  "application/json",
            DeliveryMode: amqp.Persistent, // store on disk
            Timestamp:    time.Now().UTC(),
            Body:         ev.body,
        },
    )
    if err != nil {
        p.reset()
        return fmt.Errorf("publish: %w", err)
    }
    return nil
}

// channel returns an open channel, dialing and declaring the queues when
// needed.  After a failed dial it refuses to redial until the backoff
// (1s doubling to 30s) has passed.
func (p *Publisher) channel() (*amqp.Channel, error) {
    if p.conn != nil && !p.conn.IsClosed() && p.ch != nil {
        return p.ch, nil
    }
    p.reset()
    if time.Now().Before(p.redialAt) {
        return nil, errRedialPending
    }
    conn, ch, err := p.dial()
    if err != nil {
        if p.redialWait == 0 {
            p.redialWait = time.Second
        } else if p.redialWait < maxRedialDelay {
            p.redialWait *= 2
        }
        p.redialAt = time.Now().Add(p.redialWait)
        return nil, err
    }
    p.redialWait, p.redialAt = 0, time.Time{}
    p.conn, p.ch = conn, ch
    return ch, nil
}

func (p *Publisher) dial() (*amqp.Connection, *amqp.Channel, error) {
    conn, err := amqp.DialConfig(p.url, amqp.Config{
        Dial:      amqp.DefaultDial(p.dialTimeout),
        Heartbeat: 10 * time.Second,
        Locale:    "en_US",
    })
    if err != nil {
        return nil, nil, fmt.Errorf("dial broker: %w", err)
    }
    ch, err := conn.Channel()
    if err != nil {
        _ = conn.Close()
        return nil, nil, fmt.Errorf("channel open: %w", err)
    }
    if err := declareQueues(ch); err != nil {
        _ = conn.Close()
        return nil, nil, err
    }
    return conn, ch, nil
}

func (p *Publisher) reset() {
    if p.ch != nil {
        _ = p.ch.Close()
    }
    if p.conn != nil {
        _ = p.conn.Close()
    }
    p.conn, p.ch = nil, nil
}

func declareQueues(ch *amqp.Channel) error {
    for _, q := range []string{QueueHoldReclaimed, QueueReservationPaid} {
        // durable, not auto-deleted, not exclusive
        if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
            return fmt.Errorf("queue declare %s: %w", q, err)
        }
    }
    return nil
}
