// Package telegram connects the bot to Telegram via long polling and exposes
// the registration commands.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/DmitryBurnaev/tg-housing/internal/render"
	"github.com/DmitryBurnaev/tg-housing/internal/transport"
	"github.com/DmitryBurnaev/tg-housing/pkg/logx"
)

const textLimit = 4000

type Config struct {
	Token       string
	PollTimeout time.Duration
	DefaultCity string
}

// AddressItem is one monitored address as shown in /list.
type AddressItem struct {
	ID    int64
	Label string
}

// Registrar is the registration backend the command handlers talk to.
type Registrar interface {
	Register(ctx context.Context, chatID int64, username, locale string) error
	AddAddress(ctx context.Context, chatID int64, city, raw string) (label string, err error)
	ListAddresses(ctx context.Context, chatID int64) ([]AddressItem, error)
	RemoveAddress(ctx context.Context, chatID, addressID int64) error
}

type Adapter struct {
	cfg      Config
	bot      *tele.Bot
	reg      Registrar
	renderer *render.Renderer
	log      logx.Logger

	runMu   sync.Mutex
	running bool
}

func New(cfg Config, reg Registrar, renderer *render.Renderer, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	a := &Adapter{cfg: cfg, bot: b, reg: reg, renderer: renderer, log: log}
	a.registerHandlers()
	return a, nil
}

func (a *Adapter) registerHandlers() {
	a.bot.Handle("/start", a.handleStart)
	a.bot.Handle("/add", a.handleAdd)
	a.bot.Handle("/list", a.handleList)
	a.bot.Handle("/remove", a.handleRemove)
}

func senderLocale(c tele.Context) string {
	if s := c.Sender(); s != nil {
		return s.LanguageCode
	}
	return ""
}

func (a *Adapter) handleStart(c tele.Context) error {
	locale := senderLocale(c)
	username := ""
	if s := c.Sender(); s != nil {
		username = s.Username
	}
	if err := a.reg.Register(context.Background(), c.Chat().ID, username, locale); err != nil {
		a.log.Error("register user", logx.Int64("chat_id", c.Chat().ID), logx.Err(err))
		return c.Send(a.renderer.T(locale, "cmd.error"))
	}
	return c.Send(a.renderer.T(locale, "cmd.start"))
}

// handleAdd accepts "/add <city> <street, house>". A single-word payload is
// treated as a street with the configured default city.
func (a *Adapter) handleAdd(c tele.Context) error {
	locale := senderLocale(c)
	payload := strings.TrimSpace(c.Message().Payload)
	if payload == "" {
		return c.Send(a.renderer.T(locale, "cmd.usage_add"))
	}

	city := a.cfg.DefaultCity
	raw := payload
	if fields := strings.Fields(payload); len(fields) > 1 {
		city = fields[0]
		raw = strings.TrimSpace(strings.TrimPrefix(payload, fields[0]))
	}

	label, err := a.reg.AddAddress(context.Background(), c.Chat().ID, city, raw)
	if err != nil {
		a.log.Error("add address", logx.Int64("chat_id", c.Chat().ID), logx.Err(err))
		return c.Send(a.renderer.T(locale, "cmd.error"))
	}
	return c.Send(a.renderer.T(locale, "cmd.added", label))
}

func (a *Adapter) handleList(c tele.Context) error {
	locale := senderLocale(c)
	items, err := a.reg.ListAddresses(context.Background(), c.Chat().ID)
	if err != nil {
		a.log.Error("list addresses", logx.Int64("chat_id", c.Chat().ID), logx.Err(err))
		return c.Send(a.renderer.T(locale, "cmd.error"))
	}
	if len(items) == 0 {
		return c.Send(a.renderer.T(locale, "cmd.list_none"))
	}
	var b strings.Builder
	for _, it := range items {
		fmt.Fprintf(&b, "%d. %s\n", it.ID, it.Label)
	}
	return c.Send(a.renderer.T(locale, "cmd.list", strings.TrimRight(b.String(), "\n")))
}

func (a *Adapter) handleRemove(c tele.Context) error {
	locale := senderLocale(c)
	id, err := strconv.ParseInt(strings.TrimSpace(c.Message().Payload), 10, 64)
	if err != nil {
		return c.Send(a.renderer.T(locale, "cmd.error"))
	}
	if err := a.reg.RemoveAddress(context.Background(), c.Chat().ID, id); err != nil {
		a.log.Error("remove address", logx.Int64("chat_id", c.Chat().ID), logx.Err(err))
		return c.Send(a.renderer.T(locale, "cmd.error"))
	}
	return c.Send(a.renderer.T(locale, "cmd.removed"))
}

func (a *Adapter) Start(ctx context.Context) error {
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	a.runMu.Unlock()

	go a.bot.Start()
	go func() {
		<-ctx.Done()
		a.bot.Stop()
	}()
	a.log.Info("telegram adapter started")
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if !a.running {
		return nil
	}
	a.running = false
	a.bot.Stop()
	return nil
}

// SendText delivers one notification, splitting texts that exceed the
// platform limit on newline boundaries.
func (a *Adapter) SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	if opt == nil {
		opt = &transport.SendOptions{}
	}
	chat := &tele.Chat{ID: to.ChatID}
	sendOpt := &tele.SendOptions{
		ParseMode:             opt.ParseMode,
		DisableWebPagePreview: opt.DisablePreview,
	}

	var first transport.MessageRef
	for i, chunk := range splitText(text, textLimit) {
		if err := ctx.Err(); err != nil {
			return first, err
		}
		msg, err := a.bot.Send(chat, chunk, sendOpt)
		if err != nil {
			return first, classifySendErr(to.ChatID, err)
		}
		if i == 0 {
			first = transport.MessageRef{ChatID: to.ChatID, MessageID: msg.ID}
		}
	}
	return first, nil
}

// classifySendErr sorts Telegram send failures into transient and permanent.
func classifySendErr(chatID int64, err error) error {
	transient := false

	var flood tele.FloodError
	var apiErr *tele.Error
	var netErr net.Error
	switch {
	case errors.As(err, &flood):
		transient = true
	case errors.As(err, &apiErr):
		transient = apiErr.Code >= 500 || apiErr.Code == 429
	case errors.As(err, &netErr) && netErr.Timeout():
		transient = true
	case errors.Is(err, context.DeadlineExceeded):
		transient = true
	}
	return &transport.DispatchError{ChatID: chatID, Transient: transient, Err: err}
}

// splitText cuts long messages, preferring newline boundaries near the end
// of each window.
func splitText(s string, limit int) []string {
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}

	var out []string
	start := 0
	for start < len(rs) {
		end := start + limit
		if end >= len(rs) {
			out = append(out, string(rs[start:]))
			break
		}
		cut := end
		for i := end - 1; i > start+limit/3; i-- {
			if rs[i] == '\n' {
				cut = i + 1
				break
			}
		}
		out = append(out, strings.TrimRight(string(rs[start:cut]), "\n"))
		start = cut
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}
