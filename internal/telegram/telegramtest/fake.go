// Package telegramtest provides an in-memory telegram.Client for tests.
package telegramtest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/coopco/telebox/internal/telegram"
)

// Call records one client invocation.
type Call struct {
	Method string
	Chat   int64
	From   int64
	IDs    []int
	Text   string
	User   int64
	Action telegram.BanAction
}

// Client is a scriptable fake. Errors queued with FailNext are returned by
// the next call of that method, in order.
type Client struct {
	mu       sync.Mutex
	SelfEnt  telegram.Entity
	Entities map[string]telegram.Entity
	Admin    []telegram.Entity
	Messages map[int64]map[int]*telegram.Message
	Calls    []Call
	failures map[string][]error
	nextID   int
	handler  func(*telegram.Message)
}

func New() *Client {
	return &Client{
		SelfEnt:  telegram.Entity{ID: 1000, Type: telegram.EntityUser, Title: "Me", Username: "me_user"},
		Entities: make(map[string]telegram.Entity),
		Messages: make(map[int64]map[int]*telegram.Message),
		failures: make(map[string][]error),
		nextID:   100,
	}
}

// FailNext queues err for the next call of method.
func (c *Client) FailNext(method string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[method] = append(c.failures[method], err)
}

// AddMessage stores a message so GetMessages and forwards can see it.
func (c *Client) AddMessage(m *telegram.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Messages[m.ChatID] == nil {
		c.Messages[m.ChatID] = make(map[int]*telegram.Message)
	}
	c.Messages[m.ChatID][m.ID] = m
}

// Deliver invokes the registered OnMessage handler.
func (c *Client) Deliver(m *telegram.Message) {
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()
	if h != nil {
		h(m)
	}
}

// CallsOf returns recorded calls of a method.
func (c *Client) CallsOf(method string) []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Call
	for _, call := range c.Calls {
		if call.Method == method {
			out = append(out, call)
		}
	}
	return out
}

// LastEdit returns the text of the most recent EditMessage call.
func (c *Client) LastEdit() string {
	edits := c.CallsOf("EditMessage")
	if len(edits) == 0 {
		return ""
	}
	return edits[len(edits)-1].Text
}

func (c *Client) record(call Call) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls = append(c.Calls, call)
	if q := c.failures[call.Method]; len(q) > 0 {
		c.failures[call.Method] = q[1:]
		return q[0]
	}
	return nil
}

func (c *Client) Self(ctx context.Context) (telegram.Entity, error) { return c.SelfEnt, nil }

func (c *Client) SendMessage(ctx context.Context, chat int64, text string, opts *telegram.SendOptions) (*telegram.Message, error) {
	if err := c.record(Call{Method: "SendMessage", Chat: chat, Text: text}); err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.nextID++
	m := &telegram.Message{ID: c.nextID, ChatID: chat, SenderID: c.SelfEnt.ID, Text: text, Out: true, Date: time.Now()}
	c.mu.Unlock()
	c.AddMessage(m)
	return m, nil
}

func (c *Client) EditMessage(ctx context.Context, chat int64, id int, text string, opts *telegram.SendOptions) error {
	return c.record(Call{Method: "EditMessage", Chat: chat, IDs: []int{id}, Text: text})
}

func (c *Client) DeleteMessages(ctx context.Context, chat int64, ids []int) error {
	return c.record(Call{Method: "DeleteMessages", Chat: chat, IDs: ids})
}

func (c *Client) PinMessage(ctx context.Context, chat int64, id int) error {
	return c.record(Call{Method: "PinMessage", Chat: chat, IDs: []int{id}})
}

func (c *Client) UnpinMessage(ctx context.Context, chat int64, id int) error {
	return c.record(Call{Method: "UnpinMessage", Chat: chat, IDs: []int{id}})
}

func (c *Client) ForwardMessages(ctx context.Context, to, from int64, ids []int) error {
	return c.record(Call{Method: "ForwardMessages", Chat: to, From: from, IDs: ids})
}

func (c *Client) CopyMessage(ctx context.Context, to, from int64, id int) error {
	return c.record(Call{Method: "CopyMessage", Chat: to, From: from, IDs: []int{id}})
}

func (c *Client) GetMessages(ctx context.Context, chat int64, ids []int) ([]*telegram.Message, error) {
	if err := c.record(Call{Method: "GetMessages", Chat: chat, IDs: ids}); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*telegram.Message
	for _, id := range ids {
		if m, ok := c.Messages[chat][id]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

func (c *Client) DownloadMedia(ctx context.Context, chat int64, id int, dest string) (string, error) {
	if err := c.record(Call{Method: "DownloadMedia", Chat: chat, IDs: []int{id}}); err != nil {
		return "", err
	}
	return dest, nil
}

func (c *Client) SendFile(ctx context.Context, chat int64, path string, opts *telegram.SendOptions) (*telegram.Message, error) {
	caption := ""
	if opts != nil {
		caption = opts.Caption
	}
	if err := c.record(Call{Method: "SendFile", Chat: chat, Text: path + "|" + caption}); err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.mu.Unlock()
	return &telegram.Message{ID: id, ChatID: chat, Out: true, HasMedia: true, MediaKind: "document"}, nil
}

func (c *Client) ResolvePeer(ctx context.Context, ref string) (telegram.Entity, error) {
	if err := c.record(Call{Method: "ResolvePeer", Text: ref}); err != nil {
		return telegram.Entity{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.Entities[ref]; ok {
		return e, nil
	}
	p, err := telegram.ParsePeerRef(ref)
	if err != nil {
		return telegram.Entity{}, err
	}
	switch {
	case p.Self:
		return c.SelfEnt, nil
	case p.Username != "":
		return telegram.Entity{}, fmt.Errorf("USERNAME_NOT_OCCUPIED: %s", p.Username)
	}
	_, typ := telegram.SplitMarkedID(p.ID)
	return telegram.Entity{ID: p.ID, Type: typ, Title: fmt.Sprintf("peer %d", p.ID)}, nil
}

func (c *Client) EditBanned(ctx context.Context, chat, user int64, action telegram.BanAction, until time.Time) error {
	return c.record(Call{Method: "EditBanned", Chat: chat, User: user, Action: action})
}

func (c *Client) AdminChats(ctx context.Context) ([]telegram.Entity, error) {
	if err := c.record(Call{Method: "AdminChats"}); err != nil {
		return nil, err
	}
	return c.Admin, nil
}

func (c *Client) OnMessage(fn func(*telegram.Message)) {
	c.mu.Lock()
	c.handler = fn
	c.mu.Unlock()
}

func (c *Client) Start(ctx context.Context) error { return nil }
func (c *Client) Stop() error                     { return nil }

// Sleeper records requested waits without sleeping.
type Sleeper struct {
	mu    sync.Mutex
	Waits []time.Duration
}

func (s *Sleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.Waits = append(s.Waits, d)
	s.mu.Unlock()
	return ctx.Err()
}

// Total returns the sum of recorded waits.
func (s *Sleeper) Total() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	var t time.Duration
	for _, w := range s.Waits {
		t += w
	}
	return t
}
