package domain

import "strings"

const (
	banPrefix     = "/ban "
	kickPrefix    = "/kick "
	removeCommand = "/remove"
)

// Command is one parsed line typed while inside a room.
// The concrete variants are Chat, Ban, Kick and RemoveRoom.
type Command interface {
	isCommand()
}

type Chat struct {
	Text string
}

type Ban struct {
	Target string
}

type Kick struct {
	Target string
}

type RemoveRoom struct{}

func (Chat) isCommand()       {}
func (Ban) isCommand()        {}
func (Kick) isCommand()       {}
func (RemoveRoom) isCommand() {}

// ParseCommand classifies an already trimmed line.
// Anything that is not a well-formed admin command falls through to Chat,
// including "/ban" without a target.
func ParseCommand(line string) Command {
	switch {
	case strings.HasPrefix(line, banPrefix):
		if target := strings.TrimSpace(line[len(banPrefix):]); target != "" {
			return Ban{Target: target}
		}
	case strings.HasPrefix(line, kickPrefix):
		if target := strings.TrimSpace(line[len(kickPrefix):]); target != "" {
			return Kick{Target: target}
		}
	case line == removeCommand:
		return RemoveRoom{}
	}
	return Chat{Text: line}
}

// AsChat turns an admin command issued by someone who is not the admin back
// into the chat text it was typed as.
func AsChat(line string) Chat {
	return Chat{Text: line}
}
