package backend

import (
	"bytes"
	"io"
	"strings"

	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
)

// mimeBody is the decoded content of a message body.
type mimeBody struct {
	Text  string
	HTML  string
	Parts []Part
}

// parseMIMEBody parses a raw RFC 5322 message using go-message and
// extracts the first text/plain and text/html bodies and every attachment
// with its payload.
func parseMIMEBody(raw []byte) mimeBody {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		// If parsing fails, treat the whole thing as plain text
		return mimeBody{Text: string(raw)}
	}
	defer mr.Close()

	var body mimeBody
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, _ := h.ContentType()
			data, readErr := io.ReadAll(part.Body)
			if readErr != nil {
				continue
			}

			switch {
			case strings.HasPrefix(contentType, "text/plain") && body.Text == "":
				body.Text = string(data)
			case strings.HasPrefix(contentType, "text/html") && body.HTML == "":
				body.HTML = string(data)
			}

		case *mail.AttachmentHeader:
			filename, _ := h.Filename()
			contentType, _, _ := h.ContentType()
			data, readErr := io.ReadAll(part.Body)
			if readErr != nil {
				continue
			}

			body.Parts = append(body.Parts, Part{
				Filename:    filename,
				ContentType: contentType,
				Data:        data,
			})
		}
	}

	return body
}
