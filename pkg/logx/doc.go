// Package logx configures crest's structured logging.
//
// A small wrapper (logx.Logger) on top of zerolog keeps:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured, one file per process start by default
//   - Loggers as injected values; nothing reaches for a global instance
package logx
