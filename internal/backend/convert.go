package backend

import (
	"sort"
	"strconv"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/nhle/mailgate/internal/model"
)

// pageOf returns the page-th slice of pageSize UIDs. Out of range pages
// are empty.
func pageOf(uids []imap.UID, page, pageSize int) []imap.UID {
	if page < 0 || pageSize < 1 {
		return nil
	}
	start := page * pageSize
	if start >= len(uids) {
		return nil
	}
	end := min(start+pageSize, len(uids))
	return uids[start:end]
}

// summaryFromBuffer extracts a MessageSummary from a FetchMessageBuffer.
func summaryFromBuffer(buf *imapclient.FetchMessageBuffer) model.MessageSummary {
	summary := model.MessageSummary{
		UID:   strconv.FormatUint(uint64(buf.UID), 10),
		Flags: make([]string, 0, len(buf.Flags)),
		To:    []string{},
		Cc:    []string{},
		Bcc:   []string{},
	}

	date := buf.InternalDate
	if env := buf.Envelope; env != nil {
		summary.Subject = env.Subject
		if !env.Date.IsZero() {
			date = env.Date
		}
		if len(env.From) > 0 {
			summary.From = env.From[0].Addr()
		}
		summary.To = addresses(env.To)
		summary.Cc = addresses(env.Cc)
		summary.Bcc = addresses(env.Bcc)
	}
	if !date.IsZero() {
		summary.Date = date.In(time.Local).Format(model.DateLayout)
	}

	for _, flag := range buf.Flags {
		summary.Flags = append(summary.Flags, string(flag))
	}

	return summary
}

func addresses(in []imap.Address) []string {
	out := make([]string, 0, len(in))
	for _, addr := range in {
		out = append(out, addr.Addr())
	}
	return out
}

func detailFromSummary(s model.MessageSummary) model.MessageDetail {
	return model.MessageDetail{
		UID:         s.UID,
		From:        s.From,
		To:          s.To,
		Cc:          s.Cc,
		Bcc:         s.Bcc,
		Subject:     s.Subject,
		Date:        s.Date,
		Flags:       s.Flags,
		Attachments: []model.Attachment{},
	}
}

// sortByUID orders summaries numerically; FETCH responses may arrive in
// any order.
func sortByUID(summaries []model.MessageSummary) {
	sort.SliceStable(summaries, func(i, j int) bool {
		a, _ := strconv.ParseUint(summaries[i].UID, 10, 32)
		b, _ := strconv.ParseUint(summaries[j].UID, 10, 32)
		return a < b
	})
}
