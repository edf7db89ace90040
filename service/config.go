package service

import (
	"encoding/json"
	"net"

	"github.com/go-delve/sbdap/pkg/config"
	"github.com/go-delve/sbdap/pkg/engine"
)

// Config provides the configuration to start a debug adapter and expose
// it to clients.
type Config struct {
	// Listener is used to serve sessions. It is nil when the adapter
	// serves a single session on its standard streams.
	Listener net.Listener
	// AcceptMulti configures the server to accept successive client
	// connections, one session at a time.
	AcceptMulti bool

	// Engine is the initialized debugger engine shared by all sessions.
	Engine engine.Engine

	// Params is a JSON object overlaid by the arguments of every launch
	// and attach request.
	Params json.RawMessage

	// Preload lists engine command files sourced by every new debugger
	// before it serves any request.
	Preload []string

	// UserConfig is the user configuration file, nil if it could not be
	// loaded.
	UserConfig *config.Config

	// AgentCommand is the command line starting a terminal agent, without
	// its "--connect PORT" arguments. It defaults to this executable.
	AgentCommand []string

	// DisconnectChan will be closed by the server when the client disconnects
	DisconnectChan chan<- struct{}
}
