// Package logx is printbot's structured logging: a value-type Logger with
// typed fields over zerolog, console output for humans and an optional
// rotating JSON file (lumberjack).
package logx
