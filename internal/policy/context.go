package policy

import "fmt"

// ActionKind classifies what an agent wants to do.
type ActionKind string

const (
	ActionFileRead       ActionKind = "file_read"
	ActionFileWrite      ActionKind = "file_write"
	ActionFileDelete     ActionKind = "file_delete"
	ActionBashExecute    ActionKind = "bash_execute"
	ActionNetworkRequest ActionKind = "network_request"
	ActionAgentSpawn     ActionKind = "agent_spawn"
)

// Context is the normalized description of one action an agent wants to
// take. Exactly the fields relevant to Kind are populated. Contexts are
// constructed per action and never mutated.
type Context struct {
	Kind    ActionKind `json:"kind"`
	Path    string     `json:"path,omitempty"`
	Command string     `json:"command,omitempty"`
	URL     string     `json:"url,omitempty"`
	Agent   string     `json:"agent,omitempty"`
}

func FileRead(path string) Context   { return Context{Kind: ActionFileRead, Path: path} }
func FileWrite(path string) Context  { return Context{Kind: ActionFileWrite, Path: path} }
func FileDelete(path string) Context { return Context{Kind: ActionFileDelete, Path: path} }
func BashExecute(command string) Context {
	return Context{Kind: ActionBashExecute, Command: command}
}
func NetworkRequest(url string) Context { return Context{Kind: ActionNetworkRequest, URL: url} }
func AgentSpawn(agent string) Context   { return Context{Kind: ActionAgentSpawn, Agent: agent} }

// IsFilesystem reports whether the kind targets a path.
func (k ActionKind) IsFilesystem() bool {
	switch k {
	case ActionFileRead, ActionFileWrite, ActionFileDelete:
		return true
	}
	return false
}

// Target returns the kind-specific subject of the action, for display
// and signature purposes.
func (c Context) Target() string {
	switch c.Kind {
	case ActionBashExecute:
		return c.Command
	case ActionNetworkRequest:
		return c.URL
	case ActionAgentSpawn:
		return c.Agent
	default:
		return c.Path
	}
}

func (c Context) String() string {
	return fmt.Sprintf("%s %s", c.Kind, c.Target())
}
