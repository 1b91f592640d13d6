package config

import (
	"reflect"
	"slices"
)

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are applied; the rest are
// listed in RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// EngineChanged is true when detector, policy, or concurrency settings
	// changed. The correction engine can be rebuilt in place.
	EngineChanged   bool
	DetectorChanged bool
	PolicyChanged   bool

	// RestartRequired names the changed keys that only take effect after a
	// restart.
	RestartRequired []string
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	// Log level
	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	d.DetectorChanged = old.Detector != new.Detector
	d.PolicyChanged = !policyEqual(old.Policy, new.Policy)
	d.EngineChanged = d.DetectorChanged || d.PolicyChanged ||
		old.Server.Concurrency != new.Server.Concurrency

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if !reflect.DeepEqual(old.Server.TLS, new.Server.TLS) {
		d.RestartRequired = append(d.RestartRequired, "server.tls")
	}
	if old.Data != new.Data {
		d.RestartRequired = append(d.RestartRequired, "data")
	}
	if !oracleEqual(old.Oracle, new.Oracle) {
		d.RestartRequired = append(d.RestartRequired, "oracle")
	}

	return d
}

func policyEqual(a, b PolicyConfig) bool {
	return a.Thresholds == b.Thresholds &&
		slices.Equal(a.NasalPairs, b.NasalPairs) &&
		a.SyllableRuleEnabled() == b.SyllableRuleEnabled()
}

// oracleEqual compares the declarative oracle settings. Breaker callbacks are
// not part of the file and are ignored.
func oracleEqual(a, b OracleConfig) bool {
	ab, bb := a.CircuitBreaker, b.CircuitBreaker
	return a.Provider == b.Provider &&
		a.ModelPath == b.ModelPath &&
		a.VocabPath == b.VocabPath &&
		a.LibraryPath == b.LibraryPath &&
		a.Timeout == b.Timeout &&
		a.MaxSequenceLength == b.MaxSequenceLength &&
		ab.MaxFailures == bb.MaxFailures &&
		ab.ResetTimeout == bb.ResetTimeout &&
		ab.HalfOpenMax == bb.HalfOpenMax
}
