package presence

import (
	"sync"
	"time"
)

type jobKey struct {
	roomKey string
	userID  string
}

type job struct {
	timer *time.Timer
	seq   uint64
}

// Reaper runs delayed removals keyed by (room, user). Scheduling a key
// that is already pending replaces the old job.
type Reaper struct {
	mu   sync.Mutex
	jobs map[jobKey]*job
	seq  uint64
}

func NewReaper() *Reaper {
	return &Reaper{jobs: make(map[jobKey]*job)}
}

func (r *Reaper) Schedule(roomKey, userID string, after time.Duration, fn func()) {
	k := jobKey{roomKey, userID}

	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.jobs[k]; ok {
		old.timer.Stop()
	}

	r.seq++
	seq := r.seq
	j := &job{seq: seq}
	j.timer = time.AfterFunc(after, func() {
		r.mu.Lock()
		cur, ok := r.jobs[k]
		if !ok || cur.seq != seq {
			r.mu.Unlock()
			return
		}
		delete(r.jobs, k)
		r.mu.Unlock()

		fn()
	})
	r.jobs[k] = j
}

// Cancel stops a pending job. It reports whether one was pending.
func (r *Reaper) Cancel(roomKey, userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := jobKey{roomKey, userID}
	j, ok := r.jobs[k]
	if !ok {
		return false
	}
	j.timer.Stop()
	delete(r.jobs, k)
	return true
}

// CancelRoom stops every pending job of a room
func (r *Reaper) CancelRoom(roomKey string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for k, j := range r.jobs {
		if k.roomKey == roomKey {
			j.timer.Stop()
			delete(r.jobs, k)
			n++
		}
	}
	return n
}

func (r *Reaper) Pending(roomKey, userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.jobs[jobKey{roomKey, userID}]
	return ok
}

// Stop cancels everything, used on shutdown
func (r *Reaper) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, j := range r.jobs {
		j.timer.Stop()
		delete(r.jobs, k)
	}
}
