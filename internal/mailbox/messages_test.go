package mailbox

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mailgate/internal/model"
)

func summaries(uids ...string) []model.MessageSummary {
	out := make([]model.MessageSummary, len(uids))
	for i, uid := range uids {
		out[i] = model.MessageSummary{UID: uid, Subject: "subject " + uid, Flags: []string{}}
	}
	return out
}

func uidsOf(msgs []model.MessageSummary) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.UID
	}
	return out
}

func TestMessageList_MarkSeenAndUnseen(t *testing.T) {
	l := NewMessageList()
	l.ReplaceAll([]model.MessageSummary{
		{UID: "A", Flags: []string{}},
		{UID: "B", Flags: []string{model.FlagSeen, `\Flagged`}},
	})

	assert.True(t, l.MarkSeen("A"))
	assert.True(t, l.MarkSeen("A"))
	a, _ := l.Get("A")
	assert.Equal(t, []string{model.FlagSeen}, a.Flags)

	assert.True(t, l.MarkUnseen("B"))
	b, _ := l.Get("B")
	assert.Equal(t, []string{`\Flagged`}, b.Flags)

	assert.False(t, l.MarkSeen("missing"))
	assert.False(t, l.MarkUnseen("missing"))
}

func TestMessageList_RemoveIsIdempotentAndKeepsOrder(t *testing.T) {
	once := NewMessageList()
	once.ReplaceAll(summaries("1", "2", "3", "4"))
	once.Remove("2")

	twice := NewMessageList()
	twice.ReplaceAll(summaries("1", "2", "3", "4"))
	assert.True(t, twice.Remove("2"))
	assert.False(t, twice.Remove("2"))

	assert.Equal(t, []string{"1", "3", "4"}, uidsOf(once.Messages()))
	assert.Equal(t, uidsOf(once.Messages()), uidsOf(twice.Messages()))
}

func TestMessageList_RandomMutationsPreserveMembershipAndOrder(t *testing.T) {
	initial := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	rng := rand.New(rand.NewSource(7))

	for round := 0; round < 200; round++ {
		l := NewMessageList()
		l.ReplaceAll(summaries(initial...))
		removed := map[string]bool{}

		for step := 0; step < 20; step++ {
			uid := initial[rng.Intn(len(initial))]
			switch rng.Intn(3) {
			case 0:
				l.MarkSeen(uid)
			case 1:
				l.MarkUnseen(uid)
			case 2:
				l.Remove(uid)
				removed[uid] = true
			}
		}

		var want []string
		for _, uid := range initial {
			if !removed[uid] {
				want = append(want, uid)
			}
		}
		got := uidsOf(l.Messages())
		if len(want) == 0 {
			assert.Empty(t, got)
			continue
		}
		require.Equal(t, want, got, "round %d", round)
	}
}

func TestMessageList_ReplaceAllDropsPreviousEntries(t *testing.T) {
	l := NewMessageList()
	l.ReplaceAll(summaries("1", "2"))
	l.ReplaceAll(summaries("9"))

	assert.Equal(t, []string{"9"}, uidsOf(l.Messages()))
	_, ok := l.Get("1")
	assert.False(t, ok)
}

func TestMessageList_StaleGenerationIsDiscarded(t *testing.T) {
	l := NewMessageList()

	first := l.Begin()
	second := l.Begin()

	assert.True(t, l.Commit(second, summaries("new")))
	assert.False(t, l.Commit(first, summaries("old")))
	assert.Equal(t, []string{"new"}, uidsOf(l.Messages()))
}

func TestMessageList_CopiesDoNotAlias(t *testing.T) {
	input := summaries("1")
	l := NewMessageList()
	l.ReplaceAll(input)

	input[0].Subject = "changed"
	out := l.Messages()
	out[0].Flags = append(out[0].Flags, model.FlagSeen)

	got, _ := l.Get("1")
	assert.Equal(t, "subject 1", got.Subject)
	assert.False(t, got.Seen())
}
