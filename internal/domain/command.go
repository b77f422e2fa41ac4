package domain

import "context"

// CommandKind identifies a control channel command.
type CommandKind string

const (
	CommandStatusFull  CommandKind = "status_full"
	CommandStatus      CommandKind = "status"
	CommandHistory     CommandKind = "history"
	CommandHistoryFull CommandKind = "history_full"
	CommandBoth        CommandKind = "both"
	CommandSend        CommandKind = "send"
)

// Command is a parsed control line.
type Command struct {
	Kind CommandKind
	// Key names the record for keyed status commands.
	Key string
	// Event and Payload are set for raw passthrough.
	Event   string
	Payload string
}

// CommandExecutor applies control commands. Implementations never fail a command in a way
// that stops later ones; problems are logged and the command becomes a no-op.
type CommandExecutor interface {
	Execute(ctx context.Context, cmd Command)
}
