package handlers

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/telegive/bot-service/internal/services"
)

// NewHealthHandler returns a handler for the /health command.
func NewHealthHandler(deps HandlerDeps) HandlerFunc {
	return healthHandler{deps}.Handle
}

// healthHandler checks every configured service once and renders one line
// per service, sorted by name.
type healthHandler struct {
	deps HandlerDeps
}

func (h healthHandler) Handle(ctx context.Context, _ Command) string {
	checks := services.CheckAll(ctx, h.deps.Services)
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	sb.WriteString(h.deps.Config.Messages.HealthHeader)
	for _, name := range names {
		glyph := "❌"
		if checks[name].Healthy() {
			glyph = "✅"
		}
		fmt.Fprintf(&sb, "%s: %s\n", name, glyph)
	}
	return strings.TrimRight(sb.String(), "\n")
}
