// Package control turns operator and recorder signals into commands.
//
// Three sources feed the same Handler: a line-oriented TCP listener restricted to an address
// allow-list, a file watcher that notices rewrites of the record and history files, and (in
// package redis) a pub/sub subscription. Malformed input is dropped and counted; a source
// never stops because of a bad line.
package control
