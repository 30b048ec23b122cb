// Package logx is hwbot's structured logging on top of zerolog.
//
// Console output is human-readable and colored only on a terminal. The file
// sink writes JSON lines rotated by lumberjack. The optional Telegram sink
// mirrors warnings and errors into the bot chat, rate limited.
package logx
