// Package database provides SQLite storage for the conversion history.
//
// Every conversion attempt, successful or not, is recorded with its formats,
// sizes, duration and error kind. Rows older than the configured retention
// are removed by a periodic cleanup.
//
// The database uses WAL mode for improved concurrent read performance
// and includes automatic schema initialization.
package database
