// Package logging provides structured, rotation-backed file logging for the
// indexer worker. docindexd always writes JSON records to a rotating file
// under <data-dir>/logs/ and to stderr; --debug lowers the minimum level
// from info to debug.
package logging
