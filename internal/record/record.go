package record

// ServerType distinguishes locally installed instances, which own an
// on-disk directory, from remote ones.
type ServerType string

const (
	TypeLocal  ServerType = "local"
	TypeRemote ServerType = "remote"
)

// SettingDescriptor describes one configurable setting exposed by a server
// instance (its schema, not its current value).
type SettingDescriptor struct {
	Name        string `json:"name"`
	Title       string `json:"title,omitempty"`
	Type        string `json:"type,omitempty"`
	Default     any    `json:"default,omitempty"`
	Description string `json:"description,omitempty"`
}

// ServerRecord is the persisted configuration of one managed server
// instance. It deliberately carries no runtime state: status, timers and
// log paths live in the registry and must never reach storage.
type ServerRecord struct {
	Key       string              `json:"key"`
	Name      string              `json:"name"`
	Title     string              `json:"title,omitempty"`
	Version   string              `json:"version"`
	Type      ServerType          `json:"type"`
	Functions []string            `json:"functions,omitempty"`
	LocalPath string              `json:"local_path,omitempty"`
	Settings  []SettingDescriptor `json:"settings,omitempty"`
	Setting   map[string]any      `json:"setting,omitempty"`
}

// Key derives the instance key for a (name, version) pair. The same pair
// always yields the same key, joining persisted records with their
// transient runtime entries.
func Key(name, version string) string {
	return name + "@" + version
}
