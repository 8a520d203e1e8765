package mail

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"go.uber.org/zap"
)

// Account holds the connection parameters for one IMAP mailbox.
type Account struct {
	Name     string
	Address  string
	Password string
	Host     string
	Port     int
}

// IMAPSource fetches unread mail over IMAP with BODY.PEEK, so that nothing
// is marked seen before the pipeline has committed it. Connections are held
// per account and re-dialed after errors.
type IMAPSource struct {
	accounts     map[string]Account
	fetchLimit   int
	maxBodyBytes int
	logger       *zap.Logger

	mu    sync.Mutex
	conns map[string]*client.Client
}

// NewIMAPSource creates a source for the given accounts. fetchLimit caps
// unread messages per ListUnread call; maxBodyBytes caps extracted body text.
func NewIMAPSource(accounts []Account, fetchLimit, maxBodyBytes int, logger *zap.Logger) *IMAPSource {
	byName := make(map[string]Account, len(accounts))
	for _, a := range accounts {
		byName[a.Name] = a
	}
	if fetchLimit < 1 {
		fetchLimit = 100
	}
	if maxBodyBytes < 1 {
		maxBodyBytes = 8 * 1024
	}
	return &IMAPSource{
		accounts:     byName,
		fetchLimit:   fetchLimit,
		maxBodyBytes: maxBodyBytes,
		logger:       logger,
		conns:        make(map[string]*client.Client),
	}
}

// conn returns a logged-in connection with INBOX selected, dialing lazily.
func (s *IMAPSource) conn(account string) (*client.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.conns[account]; ok {
		return c, nil
	}

	acct, ok := s.accounts[account]
	if !ok {
		return nil, fmt.Errorf("unknown account %q", account)
	}

	addr := fmt.Sprintf("%s:%d", acct.Host, acct.Port)
	c, err := client.DialTLS(addr, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	c.Timeout = 60 * time.Second

	if err := c.Login(acct.Address, acct.Password); err != nil {
		_ = c.Logout()
		return nil, fmt.Errorf("login %s: %w", acct.Address, err)
	}
	if _, err := c.Select("INBOX", false); err != nil {
		_ = c.Logout()
		return nil, fmt.Errorf("select INBOX on %s: %w", account, err)
	}

	s.conns[account] = c
	return c, nil
}

// drop discards a connection after an error so the next call re-dials.
func (s *IMAPSource) drop(account string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.conns[account]; ok {
		_ = c.Logout()
		delete(s.conns, account)
	}
}

// ListUnread fetches unseen messages with BODY.PEEK, oldest first, up to the
// fetch limit.
func (s *IMAPSource) ListUnread(ctx context.Context, account string) ([]Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c, err := s.conn(account)
	if err != nil {
		return nil, err
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	uids, err := c.UidSearch(criteria)
	if err != nil {
		s.drop(account)
		return nil, fmt.Errorf("search unseen on %s: %w", account, err)
	}
	if len(uids) == 0 {
		return nil, nil
	}

	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	if len(uids) > s.fetchLimit {
		s.logger.Warn("unread backlog exceeds fetch limit",
			zap.String("account", account),
			zap.Int("unread", len(uids)),
			zap.Int("limit", s.fetchLimit))
		uids = uids[:s.fetchLimit]
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchUid, section.FetchItem()}

	ch := make(chan *imap.Message, len(uids))
	done := make(chan error, 1)
	go func() {
		done <- c.UidFetch(seqset, items, ch)
	}()

	var out []Message
	for msg := range ch {
		m, err := s.toMessage(account, msg, section)
		if err != nil {
			s.logger.Warn("skipping unparsable message",
				zap.String("account", account),
				zap.Uint32("uid", msg.Uid),
				zap.Error(err))
			continue
		}
		out = append(out, m)
	}
	if err := <-done; err != nil {
		s.drop(account)
		return nil, fmt.Errorf("fetch on %s: %w", account, err)
	}

	return out, nil
}

// toMessage flattens one fetched IMAP message into the pipeline model.
func (s *IMAPSource) toMessage(account string, msg *imap.Message, section *imap.BodySectionName) (Message, error) {
	m := Message{Account: account, UID: msg.Uid}

	if env := msg.Envelope; env != nil {
		m.Subject = env.Subject
		m.MessageID = env.MessageId
		m.Date = env.Date
		if len(env.From) > 0 {
			m.Sender = env.From[0].Address()
		}
	}

	body := msg.GetBody(section)
	if body == nil {
		return m, fmt.Errorf("no body section")
	}
	text, err := extractBody(body, s.maxBodyBytes)
	if err != nil {
		return m, err
	}
	m.Body = text

	if m.MessageID == "" {
		m.MessageID = FallbackMessageID(account, m.Subject, m.Sender, m.Date)
		s.logger.Debug("synthesized message id",
			zap.String("account", account),
			zap.Uint32("uid", msg.Uid),
			zap.String("message_id", m.MessageID))
	}
	return m, nil
}

// MarkRead adds the Seen flag to one message.
func (s *IMAPSource) MarkRead(ctx context.Context, account string, uid uint32) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c, err := s.conn(account)
	if err != nil {
		return err
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uid)
	item := imap.FormatFlagsOp(imap.AddFlags, true)
	if err := c.UidStore(seqset, item, []interface{}{imap.SeenFlag}, nil); err != nil {
		s.drop(account)
		return fmt.Errorf("mark read uid %d on %s: %w", uid, account, err)
	}
	return nil
}

// Close logs out every held connection.
func (s *IMAPSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, c := range s.conns {
		_ = c.Logout()
		delete(s.conns, name)
	}
	return nil
}

var _ Source = (*IMAPSource)(nil)
