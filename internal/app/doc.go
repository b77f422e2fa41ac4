// Package app provides the application service layer.
//
// Service executes control commands: it re-reads the record and history files, asks the change
// detector what to report and publishes the resulting events. It also builds the snapshot sent
// to every newly connected client. Depends on domain interfaces, not concrete transports.
package app
