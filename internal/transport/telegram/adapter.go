// Package telegram is the telebot-backed transport: it sends notifications
// and, when enabled, answers /start and /status in the configured chat.
package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"hwbot/internal/runtime/supervisor"
	"hwbot/internal/transport"
	"hwbot/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
	// Commands enables long polling and the /start and /status handlers.
	Commands bool
	// ChatID is the only chat whose commands are answered.
	ChatID int64
	// APIURL overrides the Bot API base URL (self-hosted Bot API server).
	APIURL string
	// Offline skips the getMe call (tests).
	Offline bool
}

// StatusFunc renders the reply to /status.
type StatusFunc func() string

type Adapter struct {
	cfg Config
	log logx.Logger
	bot *tele.Bot

	runMu   sync.Mutex
	running bool
	// sup owns the poll loop and its stop watcher. Created on Start, cancelled on Stop.
	sup *supervisor.Supervisor

	statusMu sync.RWMutex
	status   StatusFunc
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		URL:     strings.TrimSpace(cfg.APIURL),
		Poller:  &tele.LongPoller{Timeout: timeout},
		Offline: cfg.Offline,
		OnError: func(err error, c tele.Context) {
			log.Warn("telegram handler error", logx.Err(err))
		},
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	a := &Adapter{cfg: cfg, log: log, bot: b}
	if cfg.Commands {
		a.registerHandlers()
	}
	return a, nil
}

// SetStatusFunc installs the /status renderer.
func (a *Adapter) SetStatusFunc(fn StatusFunc) {
	a.statusMu.Lock()
	a.status = fn
	a.statusMu.Unlock()
}

// Username returns the bot username ("" when offline).
func (a *Adapter) Username() string {
	if a.bot == nil || a.bot.Me == nil {
		return ""
	}
	return a.bot.Me.Username
}

func (a *Adapter) registerHandlers() {
	a.bot.Use(a.onlyConfiguredChat)
	a.bot.Handle("/start", func(c tele.Context) error {
		return c.Send("Бот следит за статусом проверки домашней работы. /status покажет текущее состояние.")
	})
	a.bot.Handle("/status", func(c tele.Context) error {
		a.statusMu.RLock()
		fn := a.status
		a.statusMu.RUnlock()
		if fn == nil {
			return c.Send("Статус пока недоступен.")
		}
		for _, chunk := range splitTelegramText(fn(), telegramTextLimit) {
			if err := c.Send(chunk); err != nil {
				return err
			}
		}
		return nil
	})
}

func (a *Adapter) onlyConfiguredChat(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		chat := c.Chat()
		if chat == nil || !a.allowed(chat.ID) {
			var id int64
			if chat != nil {
				id = chat.ID
			}
			a.log.Debug("ignoring update from foreign chat", logx.Int64("chat_id", id))
			return nil
		}
		return next(c)
	}
}

func (a *Adapter) allowed(chatID int64) bool {
	return a.cfg.ChatID != 0 && chatID == a.cfg.ChatID
}

// Start runs the long-poll loop when commands are enabled. Sending works without it.
func (a *Adapter) Start(ctx context.Context) error {
	if !a.cfg.Commands {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	a.sup = supervisor.New(ctx,
		supervisor.WithLogger(a.log),
		// adapter errors should not take down the whole app
		supervisor.WithCancelOnError(false),
	)
	sup := a.sup
	a.runMu.Unlock()

	sup.Go0("telebot.stop_on_cancel", func(c context.Context) {
		<-c.Done()
		a.bot.Stop()
	})

	// Telebot's Start() can return unexpectedly; restart it while the context is alive.
	sup.GoRestart("telebot.poll", func(c context.Context) error {
		a.log.Info("polling started")
		a.bot.Start()
		a.log.Info("polling stopped")
		return c.Err()
	},
		supervisor.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
		supervisor.WithPublishFirstError(false),
		supervisor.WithStopOnCleanExit(false),
	)
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	sup := a.sup
	a.sup = nil
	wasRunning := a.running
	a.running = false
	a.runMu.Unlock()

	if !wasRunning || sup == nil {
		return nil
	}
	a.log.Info("stopping")
	sup.Cancel()
	go a.bot.Stop()

	// Keep shutdown snappy even if getUpdates long-poll is still waiting.
	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem > 0 && rem < grace {
			grace = rem
		}
	}
	wctx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()
	if err := sup.Wait(wctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			a.log.Warn("telegram stop timed out", logx.Err(err))
			return nil
		}
		a.log.Debug("telegram stopped with supervisor error", logx.Err(err))
	}
	return nil
}

// SendText sends text, split into several messages when it exceeds the Telegram limit.
// The returned ref points at the first message.
func (a *Adapter) SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	if opt == nil {
		opt = &transport.SendOptions{}
	}
	chat := &tele.Chat{ID: to.ChatID}

	var first transport.MessageRef
	chunks := splitTelegramText(text, telegramTextLimit)
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return first, partial(chunks, i, err)
		}
		sendOpt := &tele.SendOptions{
			ParseMode:             opt.ParseMode,
			DisableWebPagePreview: opt.DisablePreview,
			DisableNotification:   opt.Silent,
			ThreadID:              to.ThreadID,
		}
		msg, err := a.send(ctx, chat, chunk, sendOpt)
		if err != nil {
			return first, partial(chunks, i, err)
		}
		if i == 0 {
			first = transport.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msg.ID}
		}
	}
	return first, nil
}

// partial wraps err when some chunks already went out.
func partial(chunks []string, sent int, err error) error {
	if sent == 0 {
		return err
	}
	return &transport.PartialSendError{Sent: sent, Rest: strings.Join(chunks[sent:], "\n"), Err: err}
}

// send makes bot.Send honour ctx; telebot itself has no per-call context.
// On ctx expiry the request keeps running and may still be delivered.
func (a *Adapter) send(ctx context.Context, chat *tele.Chat, text string, opt *tele.SendOptions) (*tele.Message, error) {
	type result struct {
		msg *tele.Message
		err error
	}
	ch := make(chan result, 1)
	go func() {
		m, err := a.bot.Send(chat, text, opt)
		ch <- result{msg: m, err: err}
	}()
	select {
	case r := <-ch:
		return r.msg, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
