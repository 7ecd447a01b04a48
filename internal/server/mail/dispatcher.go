package mail

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/sitekeeper/internal/logging"
)

// Dispatcher sends messages in the background. Failures are logged and never
// reach the code that queued the message.
type Dispatcher struct {
	mailer  Mailer
	timeout time.Duration
	log     logging.Logger
	now     func() time.Time

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewDispatcher(mailer Mailer, timeout time.Duration, log logging.Logger) *Dispatcher {
	return &Dispatcher{
		mailer:  mailer,
		timeout: timeout,
		log:     log.With("module", "mail"),
		now:     time.Now,
	}
}

// Dispatch queues msg and returns immediately. After Close it drops msg.
func (d *Dispatcher) Dispatch(msg Message) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		d.log.Warn(context.Background(), "mail dropped after shutdown", "to", msg.To, "subject", msg.Subject)
		return
	}
	if msg.Created.IsZero() {
		msg.Created = d.now().UTC()
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		if err := d.mailer.Send(ctx, msg); err != nil {
			d.log.Error(ctx, "mail delivery failed", "to", msg.To, "subject", msg.Subject, "error", err)
		}
	}()
}

// Close stops accepting messages and waits for in-flight sends.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.wg.Wait()
}
