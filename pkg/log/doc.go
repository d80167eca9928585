// Package log provides structured event capture for the pinwise engine.
//
// Events record the decisions the engine takes: classification results,
// allocation outcomes with the rules that blocked them, lifecycle changes
// and composer suggestions. This is separate from operational logging
// (slog); the event trace is machine-readable and can be replayed with the
// `pinwise events` command.
//
// # Basic Usage
//
//	// Console only, during development
//	logger := log.NewSlogAdapter(slog.Default())
//
//	// Binary file for later inspection
//	fl, err := log.NewFileLogger("/var/lib/pinwise/engine.plog")
//
//	// Both
//	logger := log.NewMultiLogger(log.NewSlogAdapter(slog.Default()), fl)
//
// # File Format
//
// Event files are a concatenation of CBOR-encoded Event values using
// integer map keys. Use Reader with a Filter to stream them back.
package log
