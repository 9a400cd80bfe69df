// Package logger provides a small wrapper around zap to offer:
//   - a global sugared logger writing to stderr, so stdout stays free for run summaries,
//   - console and JSON encoders (the latter for CI log collectors),
//   - context helpers (ToContext/FromContext/WithName/WithKV),
//   - level configuration and parsing utilities,
//   - convenience functions (Infof, ErrorKV, etc.).
//
// Every stage of a render run accepts a context and extracts the logger from
// it, so targets and stages show up as named, structured log entries.
package logger
