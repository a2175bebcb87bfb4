// Package logging provides opt-in file-based logging with rotation for
// the ingest/retrieval pipeline. When the --debug flag is set,
// comprehensive logs are written to ~/.ragsmith/logs/ for debugging and
// troubleshooting.
//
// By default (without --debug), logging is minimal and goes to stderr
// only.
package logging
