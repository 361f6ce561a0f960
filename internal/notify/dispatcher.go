package notify

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultDispatchTimeout = 10 * time.Second

// Dispatcher delivers events in the background. Delivery failures are logged
// and never reach the caller.
type Dispatcher struct {
	sink    Sink
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewDispatcher(sink Sink, timeout time.Duration) *Dispatcher {
	if sink == nil {
		sink = LogSink{}
	}
	if timeout <= 0 {
		timeout = defaultDispatchTimeout
	}
	return &Dispatcher{sink: sink, timeout: timeout}
}

func (d *Dispatcher) Dispatch(ev GradedEvent) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Printf("graded notification panic id=%s student_id=%s: %v", ev.ID, ev.StudentID, r)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		if err := d.sink.NotifyGraded(ctx, ev); err != nil {
			log.Printf("graded notification failed id=%s student_id=%s activity_id=%s: %v", ev.ID, ev.StudentID, ev.ActivityID, err)
		}
	}()
}

// Wait blocks until in-flight deliveries finish.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
