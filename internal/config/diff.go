package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; audio and network
// settings require a reconnect and are deliberately left out.
type ConfigDiff struct {
	LogLevelChanged  bool
	NewLogLevel      LogLevel
	PeersFileChanged bool
	NewPeersFile     string
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Peers.File != new.Peers.File {
		d.PeersFileChanged = true
		d.NewPeersFile = new.Peers.File
	}

	return d
}
