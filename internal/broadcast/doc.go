// Package broadcast implements the fan-out broker and the per-client mailboxes.
//
// The Broker keeps a registry of live clients guarded by a mutex that is only held to register,
// unregister or take a snapshot. Broadcast delivers outside the lock into each client's bounded
// Mailbox, which discards its oldest event when full, so a slow consumer sees gaps rather than
// stalling anyone else. Every registered client holds one admission claim that Unregister
// releases exactly once.
package broadcast
