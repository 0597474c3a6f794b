// Package store persists terminal sessions in SQLite.
//
// Three tables hold the record: sessions, the events each session produced
// (output, input and decoded markers) and the commands delimited by boundary
// markers. EndCommand always closes the most recent open command of a
// session. Sessions can be exported as JSON, optionally zstd or gzip
// compressed.
package store
