package backend

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/rs/zerolog"

	"github.com/nhle/mailgate/internal/logging"
	"github.com/nhle/mailgate/internal/model"
)

// IMAP is a Backend over go-imap v2. Each call dials, logs in, works and
// logs out.
type IMAP struct {
	tlsConfig *tls.Config
	log       zerolog.Logger
}

// NewIMAP creates an IMAP backend. tlsConfig may be nil.
func NewIMAP(tlsConfig *tls.Config, log zerolog.Logger) *IMAP {
	return &IMAP{tlsConfig: tlsConfig, log: log}
}

// connect establishes a connection to the account's server, authenticates,
// and returns the connected client. The caller must Logout.
func (b *IMAP) connect(ctx context.Context, acct Account, secret string) (*imapclient.Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	addr := net.JoinHostPort(acct.Server, strconv.Itoa(acct.Port))
	opts := &imapclient.Options{TLSConfig: b.tlsConfig}

	var client *imapclient.Client
	var err error

	if acct.TLS {
		client, err = imapclient.DialTLS(addr, opts)
	} else {
		client, err = imapclient.DialStartTLS(addr, opts)
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to IMAP %s: %w", addr, err)
	}

	if err := client.Login(acct.Email, secret).Wait(); err != nil {
		_ = client.Logout().Wait()
		b.log.Info().
			Str("account", logging.MaskEmail(acct.Email)).
			Err(err).
			Msg("IMAP login rejected")
		return nil, fmt.Errorf("%w for %s", ErrAuthFailed, logging.MaskEmail(acct.Email))
	}

	return client, nil
}

// session connects and selects folder.
func (b *IMAP) session(
	ctx context.Context, acct Account, secret, folder string,
) (*imapclient.Client, error) {
	client, err := b.connect(ctx, acct, secret)
	if err != nil {
		return nil, err
	}

	if _, err := client.Select(folder, nil).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, fmt.Errorf("selecting %q: %w", folder, ErrFolderNotFound)
	}

	return client, nil
}

// Folders lists every mailbox name.
func (b *IMAP) Folders(ctx context.Context, acct Account, secret string) ([]string, error) {
	client, err := b.connect(ctx, acct, secret)
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Logout().Wait() }()

	mailboxes, err := client.List("", "*", nil).Collect()
	if err != nil {
		return nil, fmt.Errorf("listing mailboxes: %w", err)
	}

	folders := make([]string, 0, len(mailboxes))
	for _, mbox := range mailboxes {
		folders = append(folders, mbox.Mailbox)
	}

	return folders, nil
}

// List returns one page of summaries in ascending UID order without
// touching the seen flag.
func (b *IMAP) List(
	ctx context.Context, acct Account, secret, folder string, page, pageSize int,
) ([]model.MessageSummary, error) {
	client, err := b.session(ctx, acct, secret, folder)
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Logout().Wait() }()

	searchData, err := client.UIDSearch(&imap.SearchCriteria{}, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("searching messages: %w", err)
	}

	uids := pageOf(searchData.AllUIDs(), page, pageSize)
	if len(uids) == 0 {
		return []model.MessageSummary{}, nil
	}

	fetchCmd := client.Fetch(imap.UIDSetNum(uids...), &imap.FetchOptions{
		Envelope:     true,
		Flags:        true,
		UID:          true,
		InternalDate: true,
	})
	defer fetchCmd.Close()

	summaries := make([]model.MessageSummary, 0, len(uids))
	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}

		buf, err := msg.Collect()
		if err != nil {
			continue
		}
		summaries = append(summaries, summaryFromBuffer(buf))
	}

	if err := fetchCmd.Close(); err != nil {
		return summaries, fmt.Errorf("fetching envelopes: %w", err)
	}

	sortByUID(summaries)

	return summaries, nil
}

// Fetch reads the whole message. The body section is fetched without
// PEEK, so the server sets \Seen.
func (b *IMAP) Fetch(
	ctx context.Context, acct Account, secret, folder, uid string,
) (*Message, error) {
	id, err := parseUID(uid)
	if err != nil {
		return nil, err
	}

	client, err := b.session(ctx, acct, secret, folder)
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Logout().Wait() }()

	bodySection := &imap.FetchItemBodySection{}
	fetchCmd := client.Fetch(imap.UIDSetNum(id), &imap.FetchOptions{
		Envelope:     true,
		Flags:        true,
		UID:          true,
		InternalDate: true,
		BodySection:  []*imap.FetchItemBodySection{bodySection},
	})
	defer fetchCmd.Close()

	msg := fetchCmd.Next()
	if msg == nil {
		return nil, fmt.Errorf("uid %s: %w", uid, ErrMessageNotFound)
	}

	buf, err := msg.Collect()
	if err != nil {
		return nil, fmt.Errorf("collecting message data: %w", err)
	}

	summary := summaryFromBuffer(buf)
	if !summary.Seen() {
		summary.Flags = append(summary.Flags, model.FlagSeen)
	}

	out := &Message{Detail: detailFromSummary(summary)}
	if raw := buf.FindBodySection(bodySection); raw != nil {
		body := parseMIMEBody(raw)
		out.Detail.Text = body.Text
		out.Detail.HTML = body.HTML
		out.Parts = body.Parts
	}

	if err := fetchCmd.Close(); err != nil {
		return out, fmt.Errorf("closing fetch: %w", err)
	}

	return out, nil
}

// Delete flags the message \Deleted and expunges the folder.
func (b *IMAP) Delete(ctx context.Context, acct Account, secret, folder, uid string) error {
	id, err := parseUID(uid)
	if err != nil {
		return err
	}

	client, err := b.session(ctx, acct, secret, folder)
	if err != nil {
		return err
	}
	defer func() { _ = client.Logout().Wait() }()

	if err := requireUID(client, id); err != nil {
		return err
	}

	storeCmd := client.Store(imap.UIDSetNum(id), &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true,
		Flags:  []imap.Flag{imap.FlagDeleted},
	}, nil)
	if err := storeCmd.Close(); err != nil {
		return fmt.Errorf("flagging %s deleted: %w", uid, err)
	}

	if err := client.Expunge().Close(); err != nil {
		return fmt.Errorf("expunging %q: %w", folder, err)
	}

	return nil
}

// Unsee removes \Seen from the message.
func (b *IMAP) Unsee(ctx context.Context, acct Account, secret, folder, uid string) error {
	id, err := parseUID(uid)
	if err != nil {
		return err
	}

	client, err := b.session(ctx, acct, secret, folder)
	if err != nil {
		return err
	}
	defer func() { _ = client.Logout().Wait() }()

	if err := requireUID(client, id); err != nil {
		return err
	}

	storeCmd := client.Store(imap.UIDSetNum(id), &imap.StoreFlags{
		Op:     imap.StoreFlagsDel,
		Silent: true,
		Flags:  []imap.Flag{imap.FlagSeen},
	}, nil)

	return storeCmd.Close()
}

// requireUID fails with ErrMessageNotFound when the selected folder has no
// message with id. STORE on a missing UID succeeds silently.
func requireUID(client *imapclient.Client, id imap.UID) error {
	data, err := client.UIDSearch(&imap.SearchCriteria{
		UID: []imap.UIDSet{imap.UIDSetNum(id)},
	}, nil).Wait()
	if err != nil {
		return fmt.Errorf("searching uid %d: %w", id, err)
	}
	if len(data.AllUIDs()) == 0 {
		return fmt.Errorf("uid %d: %w", id, ErrMessageNotFound)
	}
	return nil
}

func parseUID(uid string) (imap.UID, error) {
	n, err := strconv.ParseUint(uid, 10, 32)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("invalid uid %q: %w", uid, ErrMessageNotFound)
	}
	return imap.UID(n), nil
}
