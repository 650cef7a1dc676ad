// Package commands routes inbound chat messages to boss tracking handlers.
package commands

import (
	"context"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"time"

	kit "bosstimer/internal/transport"
	logx "bosstimer/pkg/logx"
)

type HandlerFunc func(ctx context.Context, req *Request) error

type Command struct {
	Name        string
	Description string
	Usage       string
	Handle      HandlerFunc
}

type Request struct {
	Chat         kit.ChatTarget
	FromID       int64
	FromUsername string
	Command      string
	Args         []string

	Adapter kit.Adapter
	Logger  logx.Logger
}

// Reply sends text back to the chat the command came from.
func (r *Request) Reply(ctx context.Context, text string) error {
	_, err := r.Adapter.SendText(ctx, r.Chat, text, &kit.SendOptions{DisablePreview: true})
	return err
}

type Manager struct {
	mu   sync.RWMutex
	cmds map[string]Command

	adapter kit.Adapter
	log     logx.Logger

	jobs chan func()
}

func NewManager(adapter kit.Adapter, log logx.Logger) *Manager {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Manager{
		cmds:    map[string]Command{},
		adapter: adapter,
		log:     log,
		jobs:    make(chan func(), 64),
	}
}

// SetRegistry replaces the command table. /help is always injected.
func (m *Manager) SetRegistry(cmds []Command) {
	table := make(map[string]Command, len(cmds)+1)
	for _, c := range cmds {
		name := strings.ToLower(strings.TrimSpace(c.Name))
		if name == "" || c.Handle == nil {
			continue
		}
		c.Name = name
		table[name] = c
	}
	if _, ok := table["help"]; !ok {
		table["help"] = Command{
			Name:        "help",
			Description: "show this help",
			Usage:       "/help",
			Handle: func(ctx context.Context, req *Request) error {
				return req.Reply(ctx, m.helpText())
			},
		}
	}
	m.mu.Lock()
	m.cmds = table
	m.mu.Unlock()
}

// DispatchLoop consumes updates until ctx is done or the channel closes.
// Handlers run on a small worker pool so one slow command doesn't stall intake.
func (m *Manager) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	const workers = 2
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		idx := i
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case job, ok := <-m.jobs:
					if !ok {
						return
					}
					func() {
						defer func() {
							if r := recover(); r != nil {
								m.log.Error("panic in command handler",
									logx.Int("worker", idx),
									logx.Any("panic", r),
									logx.String("stack", string(debug.Stack())),
								)
							}
						}()
						job()
					}()
				}
			}
		}()
	}
	m.log.Info("command dispatcher started", logx.Int("workers", workers))

	defer func() {
		close(m.jobs)
		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(3 * time.Second):
		}
		m.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				m.log.Info("updates channel closed")
				return nil
			}
			m.routeUpdate(ctx, up)
		}
	}
}

func (m *Manager) routeUpdate(ctx context.Context, up kit.Update) {
	if up.Kind != kit.UpdateMessage || up.Message == nil {
		return
	}
	msg := up.Message
	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "/") {
		return
	}
	parts := strings.Fields(text)
	word := strings.TrimPrefix(parts[0], "/")
	// strip @botname suffix used in groups
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	word = strings.ToLower(word)
	args := parts[1:]

	m.mu.RLock()
	cmd, ok := m.cmds[word]
	m.mu.RUnlock()

	chat := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}
	if !ok {
		_, _ = m.adapter.SendText(ctx, chat, "Unknown command. Try /help", nil)
		return
	}

	req := &Request{
		Chat:         chat,
		FromID:       msg.FromID,
		FromUsername: msg.FromUsername,
		Command:      cmd.Name,
		Args:         args,
		Adapter:      m.adapter,
		Logger: m.log.With(
			logx.Int64("chat_id", msg.ChatID),
			logx.Int64("from_id", msg.FromID),
			logx.String("cmd", cmd.Name),
		),
	}

	job := func() {
		cctx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()
		start := time.Now()
		if err := cmd.Handle(cctx, req); err != nil {
			req.Logger.Warn("command failed", logx.Err(err), logx.Duration("took", time.Since(start)))
			return
		}
		req.Logger.Debug("command handled", logx.Duration("took", time.Since(start)))
	}

	select {
	case m.jobs <- job:
	default:
		_, _ = m.adapter.SendText(ctx, chat, "Busy, try again.", nil)
	}
}

func (m *Manager) helpText() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.cmds))
	for n := range m.cmds {
		names = append(names, n)
	}
	sort.Strings(names)
	// stable, hand-picked order first; leftovers alphabetically
	order := []string{"addboss", "killed", "bosses", "alert", "clearbosses", "help"}
	seen := map[string]bool{}
	var b strings.Builder
	b.WriteString("Boss timer commands:\n")
	write := func(n string) {
		c, ok := m.cmds[n]
		if !ok || seen[n] {
			return
		}
		seen[n] = true
		b.WriteString(c.Usage)
		b.WriteString(" — ")
		b.WriteString(c.Description)
		b.WriteString("\n")
	}
	for _, n := range order {
		write(n)
	}
	for _, n := range names {
		write(n)
	}
	return strings.TrimRight(b.String(), "\n")
}
