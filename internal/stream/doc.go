// Package stream drives one consumer connection: it admits the client with the broker,
// writes the connect preamble and initial events, then drains the client's mailbox into a
// transport Framer, emitting heartbeats while idle.
package stream
