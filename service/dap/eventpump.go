package dap

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-delve/sbdap/pkg/engine"
	"github.com/go-delve/sbdap/pkg/logflags"
)

const (
	eventQueueCapacity = 1000
	eventWaitTimeout   = time.Second
)

// eventPump moves engine events from a blocking listener to the
// dispatcher. It only holds the sending end of the queue.
type eventPump struct {
	listener engine.Listener
	out      chan engine.Event
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	dropped  atomic.Int64
	// err is the listener failure that ended the pump. It is set before
	// out is closed.
	err error
	log logflags.Logger
}

func newEventPump(l engine.Listener) *eventPump {
	return &eventPump{
		listener: l,
		out:      make(chan engine.Event, eventQueueCapacity),
		done:     make(chan struct{}),
		log:      logflags.PumpLogger(),
	}
}

func (p *eventPump) start() {
	p.wg.Add(1)
	go p.run()
}

func (p *eventPump) run() {
	defer p.wg.Done()
	defer close(p.out)
	var ev engine.Event
	for {
		select {
		case <-p.done:
			return
		default:
		}
		ev.Reset()
		ok, err := p.listener.WaitForEvent(eventWaitTimeout, &ev)
		if err != nil {
			p.err = err
			p.log.Debugf("listener failed, stopping: %v", err)
			return
		}
		if !ok {
			continue
		}
		p.log.Debugf("engine event %s state=%s", ev.Kind, ev.State)
		select {
		case p.out <- ev.Clone():
		case <-p.done:
			return
		default:
			n := p.dropped.Add(1)
			p.log.Warnf("dropping engine event %s: queue full (%d dropped)", ev.Kind, n)
		}
	}
}

// stop ends the pump and waits for the worker, at most one wait timeout.
func (p *eventPump) stop() {
	p.stopOnce.Do(func() { close(p.done) })
	p.wg.Wait()
}
