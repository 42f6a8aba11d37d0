// Package procctl is the boundary to the OS-level process collaborator
// that spawns, kills and pings worker server binaries.
package procctl

import "context"

// Descriptor identifies one server process to the controller. The same
// descriptor is passed to Start, Stop and Ping of a given run.
type Descriptor struct {
	Path      string         `json:"path"`
	Name      string         `json:"name"`
	Version   string         `json:"version"`
	Setting   map[string]any `json:"setting,omitempty"`
	LogFile   string         `json:"log_file"`
	ChannelID string         `json:"channel_id,omitempty"`
}

// Controller abstracts process control. Start and Stop are asynchronous
// request/response calls: they acknowledge the request, while the actual
// exit outcome arrives on the descriptor's event channel.
type Controller interface {
	Start(ctx context.Context, d Descriptor) error
	Stop(ctx context.Context, d Descriptor) error
	Ping(ctx context.Context, d Descriptor) (bool, error)
}
