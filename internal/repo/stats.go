package repo

import "time"

// ChatStats summarizes the room log for conditional responses (ETag) in the
// HTTP layer: total messages, how many are soft-deleted, and the timestamp of
// the newest one (nil when the log is empty).
func (r *Repository) ChatStats() (count, deleted int, latest *time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count = len(r.messages)
	if count == 0 {
		return 0, 0, nil
	}
	for _, m := range r.messages {
		if m.IsDeleted {
			deleted++
		}
	}
	ts := r.messages[count-1].Timestamp
	return count, deleted, &ts
}

// MediaRequestStats summarizes media requests for conditional responses: the
// number of requests and the collection revision, which moves on every
// mutation, restore or reload of the requests collection.
func (r *Repository) MediaRequestStats() (count int, revision uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.requests), r.cRequests.revision()
}
