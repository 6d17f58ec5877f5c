// Package log provides a simple, leveled logging interface for paperrag components.
//
// # Log Levels
//
// The package supports five log levels, in order of increasing severity:
//
//   - LogLevelDebug: Detailed debugging information for development
//   - LogLevelInfo: General informational messages about normal operation
//   - LogLevelWarn: Warning messages for potentially problematic situations
//   - LogLevelError: Error messages for failures that need attention
//   - LogLevelNone: Disables all logging output
//
// Levels can be parsed from configuration with ParseLevel.
//
// # Example Usage
//
//	logger := log.NewDefaultLogger(log.LogLevelInfo)
//	logger.Info("indexed %d chunks", n)
//	logger.Warn("web search failed: %v", err)
//
// Components such as the vector store, the metadata extractor and the ingestion
// pipeline accept a Logger through a WithLogger option. When none is given they
// fall back to the package-level logger, which can be replaced globally:
//
//	log.SetDefaultLogger(log.NewGolog(log.LogLevelDebug))
//
// # golog Integration
//
// GologLogger wraps a github.com/kataras/golog logger. NewGolog builds one with
// the paperrag prefix; NewGologLogger wraps an existing instance:
//
//	glogger := golog.New()
//	glogger.SetPrefix("[ingest] ")
//	logger := log.NewGologLogger(glogger)
//	logger.SetLevel(log.LogLevelDebug)
//
// # Thread Safety
//
// DefaultLogger and GologLogger are safe for concurrent use. Replacing the
// package-level logger is not synchronized and should happen during startup.
package log
