package core

// bufferedEvent is one dispatched event retained for replay.
type bufferedEvent struct {
	Seq  int64
	Type string
	Data any
}

// replayBuffer is a bounded FIFO of the most recent events; the oldest entry
// is evicted when it is full.
type replayBuffer struct {
	entries []bufferedEvent
	head    int
	size    int
}

func newReplayBuffer(capacity int) *replayBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &replayBuffer{entries: make([]bufferedEvent, capacity)}
}

func (b *replayBuffer) push(ev bufferedEvent) {
	idx := (b.head + b.size) % len(b.entries)
	if b.size == len(b.entries) {
		b.entries[b.head] = ev
		b.head = (b.head + 1) % len(b.entries)
		return
	}
	b.entries[idx] = ev
	b.size++
}

func (b *replayBuffer) len() int {
	return b.size
}

// since returns every buffered event with a sequence greater than seq. It
// reports false when seq lies outside what the buffer can reconstruct: ahead
// of current, or older than the oldest retained event.
func (b *replayBuffer) since(seq, current int64) ([]bufferedEvent, bool) {
	if seq < 0 || seq > current {
		return nil, false
	}
	if seq == current {
		return nil, true
	}
	if b.size == 0 {
		return nil, false
	}
	oldest := b.entries[b.head].Seq
	if seq+1 < oldest {
		return nil, false
	}

	out := make([]bufferedEvent, 0, current-seq)
	for i := 0; i < b.size; i++ {
		ev := b.entries[(b.head+i)%len(b.entries)]
		if ev.Seq > seq {
			out = append(out, ev)
		}
	}
	return out, true
}

func (b *replayBuffer) capacity() int {
	return len(b.entries)
}
