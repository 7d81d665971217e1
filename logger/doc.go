// Package logger provides structured logging for webquery using zerolog.
//
// Every engine package logs through a component-scoped logger obtained
// with Get, so exchanges can be followed across the query engine, the
// orchestrator and the cache providers by their exchange ID.
//
//	log := logger.Get("webquery.query")
//	log.Debug("exchange sent", logger.Fields(logger.FieldMethod, "GET", logger.FieldURL, u))
package logger
