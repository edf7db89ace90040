package dap

import (
	"sort"
	"time"

	"github.com/go-delve/sbdap/pkg/cancel"
	"github.com/google/go-dap"
)

// outOfOrderCommands may be answered before requests that arrived
// earlier. They only read session state.
var outOfOrderCommands = map[string]bool{
	"evaluate":    true,
	"scopes":      true,
	"variables":   true,
	"threads":     true,
	"stackTrace":  true,
	"completions": true,
	"cancel":      true,
}

// pendingRequest is a request whose response has not been written.
type pendingRequest struct {
	seq     int
	command string
	source  *cancel.Source
	arrived time.Time
	inOrder bool
}

// pendingTable tracks the pending requests by sequence number.
type pendingTable struct {
	m map[int]*pendingRequest
}

func newPendingTable() *pendingTable {
	return &pendingTable{m: make(map[int]*pendingRequest)}
}

func (pt *pendingTable) add(seq int, command string) *pendingRequest {
	p := &pendingRequest{
		seq:     seq,
		command: command,
		source:  cancel.NewSource(),
		arrived: time.Now(),
		inOrder: !outOfOrderCommands[command],
	}
	pt.m[seq] = p
	return p
}

func (pt *pendingTable) get(seq int) (*pendingRequest, bool) {
	p, ok := pt.m[seq]
	return p, ok
}

func (pt *pendingTable) remove(seq int) {
	delete(pt.m, seq)
}

func (pt *pendingTable) len() int {
	return len(pt.m)
}

// list returns the pending requests in arrival order.
func (pt *pendingTable) list() []*pendingRequest {
	r := make([]*pendingRequest, 0, len(pt.m))
	for _, p := range pt.m {
		r = append(r, p)
	}
	sort.Slice(r, func(i, j int) bool { return r[i].seq < r[j].seq })
	return r
}

// cancelAll cancels and forgets every pending request.
func (pt *pendingTable) cancelAll() []*pendingRequest {
	r := make([]*pendingRequest, 0, len(pt.m))
	for seq, p := range pt.m {
		p.source.Cancel()
		r = append(r, p)
		delete(pt.m, seq)
	}
	return r
}

// orderSlot holds the response of an in-order request until every
// in-order request that arrived before it has been answered.
type orderSlot struct {
	seq      int
	response dap.Message
	filled   bool
}

// orderQueue releases responses of in-order requests in arrival order.
type orderQueue struct {
	slots []*orderSlot
}

// reserve assigns seq the next slot.
func (q *orderQueue) reserve(seq int) {
	q.slots = append(q.slots, &orderSlot{seq: seq})
}

// fill stores the response of seq and returns the responses that can be
// written now, in order. It reports false if seq has no slot.
func (q *orderQueue) fill(seq int, response dap.Message) ([]dap.Message, bool) {
	found := false
	for _, s := range q.slots {
		if s.seq == seq {
			s.response = response
			s.filled = true
			found = true
			break
		}
	}
	if !found {
		return nil, false
	}
	var ready []dap.Message
	for len(q.slots) > 0 && q.slots[0].filled {
		ready = append(ready, q.slots[0].response)
		q.slots = q.slots[1:]
	}
	return ready, true
}

func (q *orderQueue) len() int {
	return len(q.slots)
}
