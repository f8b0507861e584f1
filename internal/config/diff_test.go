package config_test

import (
	"testing"

	"github.com/budbridge-io/budbridge/internal/config"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	old := config.Default()
	new := config.Default()

	d := config.Diff(old, new)
	if d.LogLevelChanged || d.PeersFileChanged {
		t.Errorf("diff of identical configs = %+v, want no changes", d)
	}
}

func TestDiff_LogLevel(t *testing.T) {
	t.Parallel()
	old := config.Default()
	new := config.Default()
	new.Server.LogLevel = config.LogDebug

	d := config.Diff(old, new)
	if !d.LogLevelChanged || d.NewLogLevel != config.LogDebug {
		t.Errorf("diff = %+v, want log level change to debug", d)
	}
}

func TestDiff_PeersFile(t *testing.T) {
	t.Parallel()
	old := config.Default()
	new := config.Default()
	new.Peers.File = "/etc/budbridge/peers.yaml"

	d := config.Diff(old, new)
	if !d.PeersFileChanged || d.NewPeersFile != "/etc/budbridge/peers.yaml" {
		t.Errorf("diff = %+v, want peers file change", d)
	}
}

func TestDiff_IgnoresRestartOnlyFields(t *testing.T) {
	t.Parallel()
	old := config.Default()
	new := config.Default()
	new.Network.ReceivePort = 9999
	new.Audio.TargetSampleRate = 16000

	d := config.Diff(old, new)
	if d.LogLevelChanged || d.PeersFileChanged {
		t.Errorf("diff = %+v, want audio/network changes untracked", d)
	}
}
