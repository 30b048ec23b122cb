package homework

// Changed reports whether next is worth a notification given the previously
// delivered record. A missing next record is never a change; with no previous
// record any present record is.
func Changed(prev, next *Record) bool {
	if next == nil {
		return false
	}
	if prev == nil {
		return true
	}
	return prev.HomeworkName != next.HomeworkName || prev.Status != next.Status
}

// Tracker holds the single last-seen record. It is not safe for concurrent
// use; the poll loop owns it.
type Tracker struct {
	last *Record
}

func NewTracker(last *Record) *Tracker {
	t := &Tracker{}
	if last != nil {
		cp := *last
		t.last = &cp
	}
	return t
}

// Last returns a copy of the tracked record (nil before the first commit).
func (t *Tracker) Last() *Record {
	if t.last == nil {
		return nil
	}
	cp := *t.last
	return &cp
}

func (t *Tracker) Changed(next *Record) bool { return Changed(t.last, next) }

// Commit replaces the tracked record once a change has been handled.
func (t *Tracker) Commit(next Record) {
	t.last = &next
}
