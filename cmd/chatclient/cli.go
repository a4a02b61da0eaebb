package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/gookit/color"
	"github.com/gudfood/realtime/src/client"
	"github.com/gudfood/realtime/src/localstore"
	"github.com/gudfood/realtime/src/service"
	"github.com/gudfood/realtime/src/store"
)

const help = `commands:
  /chats              list chats
  /open <id> [name]   switch to a chat
  /search <term>      filter chats by counterpart name
  /notifications      list notifications
  /read [id]          mark one or all notifications read
  /quit               exit
anything else is sent to the current chat`

// cli renders store changes and turns input lines into service calls.
type cli struct {
	svc   *service.ChatService
	local *localstore.LocalStore

	mu      sync.Mutex // guards out and the fields below
	out     io.Writer
	chats   map[int64]*service.ChatHandle
	current int64
	notify  *client.Subscription
	unwatch func()
}

func newCLI(svc *service.ChatService, local *localstore.LocalStore, out io.Writer) *cli {
	return &cli{
		svc:   svc,
		local: local,
		out:   out,
		chats: make(map[int64]*service.ChatHandle),
	}
}

// Start restores the saved chat filter and begins watching notifications
// and store changes.
func (c *cli) Start() error {
	if c.local != nil {
		term, err := c.local.LoadSearchTerm()
		if err != nil {
			return err
		}
		c.svc.Store().SetSearchTerm(term)
	}
	c.unwatch = c.svc.Store().Watch(c.onEvent)

	sub, err := c.svc.WatchNotifications()
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.notify = sub
	c.mu.Unlock()
	return nil
}

// Close releases every subscription the CLI holds.
func (c *cli) Close() {
	if c.unwatch != nil {
		c.unwatch()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, h := range c.chats {
		_ = h.Close()
		delete(c.chats, id)
	}
	if c.notify != nil {
		_ = c.notify.Unsubscribe()
		c.notify = nil
	}
}

// Open subscribes to a chat, if not already open, and makes it current.
func (c *cli) Open(chatID int64, counterpart string) error {
	c.mu.Lock()
	_, open := c.chats[chatID]
	c.mu.Unlock()

	if !open {
		h, err := c.svc.OpenChat(chatID)
		if err != nil {
			return err
		}
		c.mu.Lock()
		c.chats[chatID] = h
		c.mu.Unlock()
	}

	chat, err := c.svc.Store().Chat(chatID)
	if err != nil {
		chat = store.Chat{ID: chatID}
	}
	if counterpart != "" {
		chat.CounterpartName = counterpart
	}
	c.svc.Store().UpsertChat(chat)

	c.mu.Lock()
	c.current = chatID
	c.mu.Unlock()
	c.printf("%s\n", color.FgCyan.Sprintf("chat %d open", chatID))
	return nil
}

func (c *cli) Banner(id localstore.Identity, url string) {
	header := color.New(color.BgBlack, color.FgGreen).Render(fmt.Sprintf(" gudfood chat: %s (%s) ", id.UserID, id.Role))
	c.printf("%s\n%s\n%s\n", header, color.FgDarkGray.Sprintf("connected to %s", url), help)
}

// Loop reads commands until /quit, EOF or ctx ends.
func (c *cli) Loop(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	errs := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		errs <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errs:
			return err
		case line := <-lines:
			if quit := c.Handle(ctx, line); quit {
				return nil
			}
		}
	}
}

// Handle executes one input line and reports whether the user quit.
// Failures are printed, never returned.
func (c *cli) Handle(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if !strings.HasPrefix(line, "/") {
		c.send(ctx, line)
		return false
	}

	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case "/quit", "/exit":
		return true
	case "/help":
		c.printf("%s\n", help)
	case "/chats":
		c.printChats()
	case "/open":
		c.open(arg)
	case "/search":
		c.search(arg)
	case "/notifications":
		c.printNotifications()
	case "/read":
		c.read(arg)
	default:
		c.errorf("unknown command %s", cmd)
	}
	return false
}

func (c *cli) send(ctx context.Context, content string) {
	c.mu.Lock()
	chatID := c.current
	c.mu.Unlock()
	if chatID == 0 {
		c.errorf("no chat open, use /open <id>")
		return
	}
	if err := c.svc.SendChatMessage(ctx, chatID, content); err != nil {
		c.errorf("send failed: %v", err)
	}
}

func (c *cli) open(arg string) {
	idText, name, _ := strings.Cut(arg, " ")
	id, err := strconv.ParseInt(idText, 10, 64)
	if err != nil || id <= 0 {
		c.errorf("usage: /open <id> [name]")
		return
	}
	if err := c.Open(id, strings.TrimSpace(name)); err != nil {
		c.errorf("open chat %d: %v", id, err)
	}
}

func (c *cli) search(term string) {
	c.svc.Store().SetSearchTerm(term)
	if c.local != nil {
		if err := c.local.SaveSearchTerm(term); err != nil {
			c.errorf("save search: %v", err)
		}
	}
	c.printChats()
}

func (c *cli) read(arg string) {
	s := c.svc.Store()
	if arg == "" {
		n := s.MarkAllNotificationsRead()
		c.printf("%d marked read\n", n)
		return
	}
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		c.errorf("usage: /read [id]")
		return
	}
	if err := s.MarkNotificationRead(id); err != nil {
		c.errorf("notification %d: %v", id, err)
	}
}

func (c *cli) onEvent(e store.Event) {
	s := c.svc.Store()
	switch e.Kind {
	case store.MessageAdded:
		c.mu.Lock()
		current := c.current
		c.mu.Unlock()
		if e.ChatID != current {
			c.printf("%s\n", color.FgYellow.Sprintf("new message in chat %d", e.ChatID))
			return
		}
		msgs := s.Messages(e.ChatID)
		if len(msgs) > 0 {
			c.printf("%s\n", formatMessage(msgs[len(msgs)-1]))
		}
	case store.AnnouncementAdded:
		list := s.Announcements(e.ChatID)
		if len(list) > 0 {
			c.printf("%s\n", formatAnnouncement(list[len(list)-1]))
		}
	case store.NotificationsChanged:
		c.printf("%s\n", color.FgMagenta.Sprintf("notifications: %d unread", s.UnreadCount()))
	}
}

func (c *cli) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

func (c *cli) errorf(format string, args ...any) {
	c.printf("%s\n", color.FgRed.Sprintf(format, args...))
}
