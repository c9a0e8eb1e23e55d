package mailbox

import (
	"sync"

	"github.com/nhle/mailgate/internal/model"
)

// Generation identifies one folder listing request. Only the most recently
// issued generation may commit its result.
type Generation uint64

// MessageList holds the summaries of exactly one folder and supports
// optimistic in-place mutation. Mutations are local only: callers apply them
// after the matching remote call has succeeded.
type MessageList struct {
	mu       sync.RWMutex
	messages []model.MessageSummary
	issued   Generation
}

// NewMessageList returns an empty message list.
func NewMessageList() *MessageList {
	return &MessageList{}
}

// ReplaceAll swaps in a new sequence unconditionally.
func (l *MessageList) ReplaceAll(messages []model.MessageSummary) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.replaceLocked(messages)
}

// Begin issues a new listing generation. Any generation issued earlier
// becomes stale.
func (l *MessageList) Begin() Generation {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.issued++
	return l.issued
}

// Commit replaces the sequence with messages if gen is still the most
// recently issued generation. It reports whether the result was applied.
func (l *MessageList) Commit(gen Generation, messages []model.MessageSummary) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if gen != l.issued {
		return false
	}
	l.replaceLocked(messages)
	return true
}

// MarkSeen adds \Seen to the first message with uid. It is a no-op when
// the message is absent or already seen, and reports whether uid matched.
func (l *MessageList) MarkSeen(uid string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	i := l.indexLocked(uid)
	if i < 0 {
		return false
	}
	if !l.messages[i].HasFlag(model.FlagSeen) {
		l.messages[i].Flags = append(l.messages[i].Flags, model.FlagSeen)
	}
	return true
}

// MarkUnseen removes \Seen from the first message with uid. It is a no-op
// when the message is absent, and reports whether uid matched.
func (l *MessageList) MarkUnseen(uid string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	i := l.indexLocked(uid)
	if i < 0 {
		return false
	}
	flags := l.messages[i].Flags[:0]
	for _, f := range l.messages[i].Flags {
		if f != model.FlagSeen {
			flags = append(flags, f)
		}
	}
	l.messages[i].Flags = flags
	return true
}

// Remove deletes the first message with uid, keeping the order of the
// rest. It is a no-op when absent and reports whether uid matched.
func (l *MessageList) Remove(uid string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	i := l.indexLocked(uid)
	if i < 0 {
		return false
	}
	l.messages = append(l.messages[:i], l.messages[i+1:]...)
	return true
}

// Messages returns a deep copy of the sequence.
func (l *MessageList) Messages() []model.MessageSummary {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]model.MessageSummary, len(l.messages))
	for i, m := range l.messages {
		out[i] = m.Clone()
	}
	return out
}

// Get returns a copy of the message with uid.
func (l *MessageList) Get(uid string) (model.MessageSummary, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	i := l.indexLocked(uid)
	if i < 0 {
		return model.MessageSummary{}, false
	}
	return l.messages[i].Clone(), true
}

// Len returns the number of messages.
func (l *MessageList) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.messages)
}

func (l *MessageList) replaceLocked(messages []model.MessageSummary) {
	l.messages = make([]model.MessageSummary, len(messages))
	for i, m := range messages {
		l.messages[i] = m.Clone()
	}
}

func (l *MessageList) indexLocked(uid string) int {
	for i, m := range l.messages {
		if m.UID == uid {
			return i
		}
	}
	return -1
}
