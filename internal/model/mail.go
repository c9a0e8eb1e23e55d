package model

// FlagSeen is the only protocol flag the client interprets.
const FlagSeen = `\Seen`

// DateLayout is the timestamp format the gateway uses for message dates.
const DateLayout = "2006/01/02, 15:04:05"

// Credentials identify the user towards the gateway. The zero value means
// "not logged in".
type Credentials struct {
	Identity string
	Secret   string
}

// IsZero reports whether no credentials were captured.
func (c Credentials) IsZero() bool {
	return c.Identity == "" && c.Secret == ""
}

// MessageSummary is one row of a folder listing.
type MessageSummary struct {
	UID     string   `json:"uid"`
	From    string   `json:"from"`
	Subject string   `json:"subject"`
	Flags   []string `json:"flags"`
	Date    string   `json:"date,omitempty"`
	To      []string `json:"to,omitempty"`
	Cc      []string `json:"cc,omitempty"`
	Bcc     []string `json:"bcc,omitempty"`
}

// HasFlag reports whether the summary carries the given flag.
func (m MessageSummary) HasFlag(flag string) bool {
	for _, f := range m.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// Seen reports whether the message was read.
func (m MessageSummary) Seen() bool {
	return m.HasFlag(FlagSeen)
}

// Clone returns a deep copy so callers cannot alias the flag slice.
func (m MessageSummary) Clone() MessageSummary {
	c := m
	c.Flags = cloneStrings(m.Flags)
	c.To = cloneStrings(m.To)
	c.Cc = cloneStrings(m.Cc)
	c.Bcc = cloneStrings(m.Bcc)
	return c
}

// MessageListing is the body of GET /{folder}.
type MessageListing struct {
	Mails []MessageSummary `json:"mails"`
}

// MessageDetail is a fully fetched message.
type MessageDetail struct {
	UID         string       `json:"uid"`
	From        string       `json:"from"`
	To          []string     `json:"to"`
	Cc          []string     `json:"cc,omitempty"`
	Bcc         []string     `json:"bcc,omitempty"`
	Subject     string       `json:"subject"`
	Date        string       `json:"date"`
	Flags       []string     `json:"flags,omitempty"`
	Text        string       `json:"text"`
	HTML        string       `json:"html,omitempty"`
	Attachments []Attachment `json:"attachments"`
}

// Attachment describes a file attached to a message. Link is empty when the
// gateway withheld the payload; AV then holds the scanner's verdict.
type Attachment struct {
	Filename    string `json:"filename"`
	Link        string `json:"link,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Size        int64  `json:"size,omitempty"`
	AV          string `json:"av,omitempty"`
}

// Downloadable reports whether the attachment can be fetched.
func (a Attachment) Downloadable() bool {
	return a.Filename != "" && a.Link != ""
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
