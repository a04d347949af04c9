package ledger

import "time"

// Ticket identifies one scheduled run of a debounced action.
type Ticket struct {
	Key   string
	Seq   uint64
	Delay time.Duration
}

// Debouncer hands out tickets per key. Scheduling a key again supersedes the
// previous ticket, so only the latest timer to fire does any work. The host
// owns the clock: it waits Ticket.Delay and then asks Live.
type Debouncer struct {
	delays map[string]time.Duration
	seq    map[string]uint64
	next   uint64
}

func NewDebouncer() *Debouncer {
	return &Debouncer{
		delays: make(map[string]time.Duration),
		seq:    make(map[string]uint64),
	}
}

// SetDelay sets the quiet period for keys with the given prefix.
func (d *Debouncer) SetDelay(prefix string, delay time.Duration) {
	d.delays[prefix] = delay
}

// Schedule supersedes any pending ticket for key.
func (d *Debouncer) Schedule(prefix, key string) Ticket {
	d.next++
	full := prefix + ":" + key
	d.seq[full] = d.next
	return Ticket{Key: full, Seq: d.next, Delay: d.delays[prefix]}
}

// Live reports whether t is still the latest ticket for its key.
func (d *Debouncer) Live(t Ticket) bool {
	seq, ok := d.seq[t.Key]
	return ok && seq == t.Seq
}

// Done retires a ticket once its action has started.
func (d *Debouncer) Done(t Ticket) {
	if d.Live(t) {
		delete(d.seq, t.Key)
	}
}

// Pending reports whether key has a ticket that has not fired yet.
func (d *Debouncer) Pending(prefix, key string) bool {
	_, ok := d.seq[prefix+":"+key]
	return ok
}

func (d *Debouncer) Cancel(prefix, key string) {
	delete(d.seq, prefix+":"+key)
}

// CancelAll drops every pending ticket, used on teardown.
func (d *Debouncer) CancelAll() {
	d.seq = make(map[string]uint64)
}
