package tools

import (
	"context"
	"fmt"
	"time"
)

// Registry routes tool calls to the server named in the call.
type Registry struct {
	servers map[string]Caller
}

func NewRegistry() *Registry {
	return &Registry{servers: map[string]Caller{}}
}

func (r *Registry) Register(server string, caller Caller) {
	r.servers[server] = caller
}

func (r *Registry) Call(ctx context.Context, call Call) (string, error) {
	caller, ok := r.servers[call.Server]
	if !ok {
		return "", fmt.Errorf("unknown tool server %q", call.Server)
	}
	return caller.Call(ctx, call)
}

// CallerFunc adapts a function to the Caller interface.
type CallerFunc func(ctx context.Context, call Call) (string, error)

func (f CallerFunc) Call(ctx context.Context, call Call) (string, error) {
	return f(ctx, call)
}

// LocalServerName is the server tag for the built-in tools.
const LocalServerName = "local"

// LocalTools describes the built-in tools for the catalogue.
func LocalTools() []Tool {
	return []Tool{
		{
			Name:        "get_current_time",
			Description: "Returns the current local date and time.",
			Server:      LocalServerName,
		},
	}
}

// LocalServer executes the built-in tools in-process.
func LocalServer() Caller {
	return CallerFunc(func(ctx context.Context, call Call) (string, error) {
		switch call.Tool {
		case "get_current_time":
			return time.Now().Format("Monday, January 02, 2006 03:04 PM"), nil
		default:
			return "", fmt.Errorf("unknown tool %q", call.Tool)
		}
	})
}
