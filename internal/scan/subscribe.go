package scan

import (
	"context"
)

// Subscribe returns a channel of the job's snapshots, starting with the
// current one. Only the latest undelivered snapshot is kept, so a slow
// reader sees fewer updates but never a stale final state. The channel is
// closed after the terminal snapshot. Call cancel to stop early.
func (c *Coordinator) Subscribe(ctx context.Context, id string) (updates <-chan Snapshot, cancel func(), err error) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()

	job, err := c.store.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	ch := make(chan Snapshot, 1)
	snap := job.Snapshot()
	ch <- snap

	if snap.Terminal() {
		close(ch)
		return ch, func() {}, nil
	}

	c.subs[id] = append(c.subs[id], ch)

	return ch, func() { c.unsubscribe(id, ch) }, nil
}

// publish fans snap out to the job's subscribers. Transitions publish while
// holding subsMu, so subscribers observe snapshots in commit order.
func (c *Coordinator) publish(snap Snapshot) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()

	subs := c.subs[snap.JobID]
	for _, ch := range subs {
		deliverLatest(ch, snap)

		if snap.Terminal() {
			close(ch)
		}
	}

	if snap.Terminal() {
		delete(c.subs, snap.JobID)
	}
}

func (c *Coordinator) unsubscribe(id string, ch chan Snapshot) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()

	subs := c.subs[id]
	for i, s := range subs {
		if s == ch {
			c.subs[id] = append(subs[:i], subs[i+1:]...)
			close(ch)

			break
		}
	}

	if len(c.subs[id]) == 0 {
		delete(c.subs, id)
	}
}

// deliverLatest replaces any undelivered snapshot with snap. Callers hold
// subsMu, making them the channel's only sender.
func deliverLatest(ch chan Snapshot, snap Snapshot) {
	select {
	case ch <- snap:
		return
	default:
	}

	select {
	case <-ch:
	default:
	}

	ch <- snap
}
