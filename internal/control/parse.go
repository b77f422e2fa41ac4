package control

import (
	"fmt"
	"strings"

	"github.com/karelxkk/svx-dashboard/internal/domain"
)

// MaxLineLength bounds a single control line in bytes.
const MaxLineLength = 4096

// Parse reads one control line. The verb is case-insensitive. Arguments after the ones a
// command takes are ignored, except for send where everything after the event name is data.
func Parse(line string) (domain.Command, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return domain.Command{}, domain.ErrEmptyCommand
	}

	verb, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimLeft(rest, " \t")
	kind := domain.CommandKind(strings.ToLower(verb))

	switch kind {
	case domain.CommandStatusFull, domain.CommandHistory, domain.CommandHistoryFull:
		return domain.Command{Kind: kind}, nil

	case domain.CommandStatus, domain.CommandBoth:
		key, _, _ := strings.Cut(rest, " ")
		return domain.Command{Kind: kind, Key: strings.TrimSpace(key)}, nil

	case domain.CommandSend:
		event, data, ok := strings.Cut(rest, " ")
		if !ok || event == "" {
			return domain.Command{}, fmt.Errorf("%w: send needs an event and data", domain.ErrUnknownCommand)
		}
		return domain.Command{Kind: kind, Event: event, Payload: data}, nil

	default:
		return domain.Command{}, fmt.Errorf("%w: %q", domain.ErrUnknownCommand, verb)
	}
}

// Format renders cmd as a control line that Parse reads back.
func Format(cmd domain.Command) string {
	switch cmd.Kind {
	case domain.CommandStatus, domain.CommandBoth:
		if cmd.Key != "" {
			return string(cmd.Kind) + " " + cmd.Key
		}
	case domain.CommandSend:
		return fmt.Sprintf("%s %s %s", cmd.Kind, cmd.Event, cmd.Payload)
	}
	return string(cmd.Kind)
}
