package handlers

import (
	"context"
)

// Command is one inbound text message addressed to a bot.
type Command struct {
	BotID    string
	ChatID   int64
	UserID   int64
	Username string
	Text     string
}

// HandlerFunc turns a command into the reply text.
type HandlerFunc func(ctx context.Context, cmd Command) string

// RegisteredHandler binds a command prefix to its handler and middleware.
type RegisteredHandler struct {
	Name       string
	Prefix     string
	Handler    HandlerFunc
	Middleware []Middleware
}

// RegisterAllCommands returns every chat command in match order. Earlier
// entries win when several prefixes match.
func RegisterAllCommands(deps HandlerDeps) []RegisteredHandler {
	instrumented := func(name string) []Middleware {
		return []Middleware{Recover(deps, name), Instrument(deps, name)}
	}

	return []RegisteredHandler{
		{Name: "start", Prefix: "/start", Handler: NewStartHandler(deps), Middleware: instrumented("start")},
		{Name: "help", Prefix: "/help", Handler: NewHelpHandler(deps), Middleware: instrumented("help")},
		{Name: "status", Prefix: "/status", Handler: NewStatusHandler(deps), Middleware: instrumented("status")},
		{Name: "health", Prefix: "/health", Handler: NewHealthHandler(deps), Middleware: instrumented("health")},
		{Name: "channels", Prefix: "/channels", Handler: NewChannelsHandler(deps), Middleware: instrumented("channels")},
		{Name: "participants", Prefix: "/participants", Handler: NewParticipantsHandler(deps), Middleware: instrumented("participants")},
	}
}
