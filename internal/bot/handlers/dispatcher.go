package handlers

import (
	"context"
	"strings"

	"github.com/telegive/bot-service/internal/logger"
	"github.com/telegive/bot-service/internal/metrics"
)

type route struct {
	name    string
	prefix  string
	handler HandlerFunc
}

// Dispatcher matches command text against the registered prefixes in order.
type Dispatcher struct {
	routes   []route
	fallback string
}

// NewDispatcher builds a dispatcher from RegisterAllCommands.
func NewDispatcher(deps HandlerDeps) *Dispatcher {
	if deps.Logger == nil {
		deps.Logger = logger.Discard()
	}
	deps.Logger = deps.Logger.With("component", "dispatcher")
	return newDispatcher(deps, RegisterAllCommands(deps))
}

func newDispatcher(deps HandlerDeps, registered []RegisteredHandler) *Dispatcher {
	d := &Dispatcher{fallback: deps.Config.Messages.Fallback}
	for _, rh := range registered {
		if rh.Handler == nil {
			deps.Logger.Warn("Skipping registration for nil handler", "prefix", rh.Prefix)
			continue
		}
		d.routes = append(d.routes, route{
			name:    rh.Name,
			prefix:  rh.Prefix,
			handler: applyMiddleware(rh.Handler, rh.Middleware),
		})
	}
	deps.Logger.Info("Registered chat commands", "count", len(d.routes))
	return d
}

// Dispatch returns the reply for cmd. The first route whose prefix starts the
// text wins; text matching no route gets the fallback reply.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd Command) string {
	for _, r := range d.routes {
		if strings.HasPrefix(cmd.Text, r.prefix) {
			return r.handler(ctx, cmd)
		}
	}
	metrics.CommandsTotal.WithLabelValues("fallback").Inc()
	return d.fallback
}

// Commands lists the registered prefixes in match order.
func (d *Dispatcher) Commands() []string {
	out := make([]string, len(d.routes))
	for i, r := range d.routes {
		out[i] = r.prefix
	}
	return out
}
