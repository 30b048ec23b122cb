package logx

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"hwbot/internal/transport"
)

var stdout io.Writer = os.Stdout

type Config struct {
	Level    string
	Console  bool
	File     FileConfig
	Telegram TelegramConfig
}

type FileConfig struct {
	Enabled    bool
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// TelegramConfig controls mirroring of log entries into the bot chat.
type TelegramConfig struct {
	Enabled    bool
	MinLevel   string
	RatePerSec int
}

const defaultLogFile = "./hwbot.log"

// Service owns the sinks and rebuilds them on Apply. Loggers handed out by
// the service pick up the new sinks without being recreated.
type Service struct {
	mu   sync.Mutex
	file *lumberjack.Logger
	tg   *telegramSink

	root atomic.Pointer[zerolog.Logger]
}

// New builds the service from cfg. sender may be nil and set later with
// SetSender; until then the Telegram sink drops entries.
func New(cfg Config, sender transport.Sender) (*Service, Logger) {
	s := &Service{tg: newTelegramSink(sender)}
	s.Apply(cfg)
	return s, Logger{svc: s}
}

func (s *Service) current() zerolog.Logger {
	if zl := s.root.Load(); zl != nil {
		return *zl
	}
	return zerolog.Nop()
}

func (s *Service) SetSender(sender transport.Sender) { s.tg.setSender(sender) }

// SetTelegramTarget sets the chat (and thread) log entries are mirrored to.
func (s *Service) SetTelegramTarget(to transport.ChatTarget) { s.tg.setTarget(to) }

// Apply swaps level and sinks. Safe for concurrent use.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sinks []io.Writer
	if cfg.Console {
		sinks = append(sinks, newConsoleWriter(stdout))
	}

	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}
	if cfg.File.Enabled {
		s.file = openRotating(cfg.File)
		sinks = append(sinks, zerolog.SyncWriter(s.file))
	}

	s.tg.configure(cfg.Telegram)
	if cfg.Telegram.Enabled {
		sinks = append(sinks, s.tg)
	}

	if len(sinks) == 0 {
		sinks = append(sinks, newConsoleWriter(stdout))
	}
	zl := zerolog.New(zerolog.MultiLevelWriter(sinks...)).
		Level(parseLevel(cfg.Level, zerolog.InfoLevel)).
		With().Timestamp().Logger()
	s.root.Store(&zl)
}

// Close flushes the Telegram queue worker and closes the log file.
func (s *Service) Close() error {
	s.tg.close()

	s.mu.Lock()
	f := s.file
	s.file = nil
	s.mu.Unlock()
	if f == nil {
		return nil
	}
	return f.Close()
}

func openRotating(fc FileConfig) *lumberjack.Logger {
	path := strings.TrimSpace(fc.Path)
	if path == "" {
		path = defaultLogFile
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "logx: create %s: %v\n", dir, err)
		}
	}
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    positiveOr(fc.MaxSizeMB, 50),
		MaxBackups: positiveOr(fc.MaxBackups, 5),
		MaxAge:     positiveOr(fc.MaxAgeDays, 28),
		Compress:   fc.Compress,
	}
}

func newConsoleWriter(w io.Writer) io.Writer {
	return zerolog.ConsoleWriter{
		Out:          w,
		TimeFormat:   timeFormat,
		NoColor:      !colorable(w),
		FormatCaller: func(i any) string { s, _ := i.(string); return s },
	}
}

// colorable is true for a terminal unless NO_COLOR is set.
func colorable(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok || os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func positiveOr(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}
