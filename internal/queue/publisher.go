package queue

import (
    "context"
    "encoding/json"
    "log/slog"
    "sync"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher sends SecurityEvents to RabbitMQ.  The connection and channel
// are opened on first use and kept; any failure drops them so the next
// call redials.  Errors are logged and returned so the caller can ignore
// them without interrupting the request.
type Publisher struct {
    URL   string
    Queue string
    Log   *slog.Logger

    mu   sync.Mutex
    conn *amqp.Connection
    ch   *amqp.Channel
}

// NewPublisher returns a Publisher for the security queue at url.
func NewPublisher(url string, log *slog.Logger) *Publisher {
    return &Publisher{URL: url, Queue: SecurityQueueName, Log: log.With("component", "queue-publisher")}
}

// Publish delivers ev.  It never panics.
func (p *Publisher) Publish(ctx context.Context, ev SecurityEvent) error {
    body, err := json.Marshal(ev)
    if err != nil {
        return err
    }

    p.mu.Lock()
    defer p.mu.Unlock()

    ch, err := p.channel(ctx)
    if err != nil {
        return err
    }

    pub := amqp.Publishing{
        ContentType:  "application/json",
        DeliveryMode: amqp.Persistent, // store on disk
        MessageId:    ev.EventID,
        Timestamp:    time.Now().UTC(),
        Body:         body,
    }

    if err := ch.PublishWithContext(ctx,
        "",      // default exchange
        p.Queue, // routing key = queue name
        false,   // mandatory
        false,   // immediate
        pub,
    ); err != nil {
        p.Log.WarnContext(ctx, "rabbitmq publish failed", "error", err, "action", ev.Action)
        p.reset()
        return err
    }
    return nil
}

// channel returns the open channel, dialing and declaring the queue when
// there is none.  Callers hold p.mu.
func (p *Publisher) channel(ctx context.Context) (*amqp.Channel, error) {
    if p.ch != nil && !p.ch.IsClosed() && p.conn != nil && !p.conn.IsClosed() {
        return p.ch, nil
    }
    p.reset()

    conn, err := amqp.Dial(p.URL)
    if err != nil {
        p.Log.WarnContext(ctx, "rabbitmq dial failed", "error", err)
        return nil, err
    }
    ch, err := conn.Channel()
    if err != nil {
        _ = conn.Close()
        p.Log.WarnContext(ctx, "rabbitmq channel open failed", "error", err)
        return nil, err
    }
    // Ensure the queue exists (idempotent). Durable so messages survive broker restarts.
    if _, err := ch.QueueDeclare(
        p.Queue, // name
        true,    // durable
        false,   // autoDelete
        false,   // exclusive
        false,   // noWait
        nil,     // args
    ); err != nil {
        _ = ch.Close()
        _ = conn.Close()
        p.Log.WarnContext(ctx, "rabbitmq queue declare failed", "error", err)
        return nil, err
    }
    p.conn, p.ch = conn, ch
    return ch, nil
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

// Close releases the broker connection.
func (p *Publisher) Close() error {
    p.mu.Lock()
    defer p.mu.Unlock()
    p.reset()
    return nil
}
