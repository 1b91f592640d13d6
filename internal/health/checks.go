package health

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/zhfix/internal/knowledge"
	"github.com/MrWong99/zhfix/internal/resilience"
)

// SnapshotSource yields the active knowledge snapshot.
type SnapshotSource interface {
	Load() *knowledge.Snapshot
}

// Snapshot fails until src holds a snapshot.
func Snapshot(src SnapshotSource) Checker {
	return Checker{
		Name: "snapshot",
		Check: func(context.Context) error {
			if src.Load() == nil {
				return errors.New("no knowledge snapshot loaded")
			}
			return nil
		},
	}
}

// OracleStatus reports backend breaker state.
type OracleStatus interface {
	Status() []resilience.BackendStatus
	Available() bool
}

// Oracle fails while every oracle backend's breaker is open. It is degraded:
// corrections still run on the frequency fallback.
func Oracle(o OracleStatus) Checker {
	return Checker{
		Name:     "oracle",
		Degraded: true,
		Check: func(context.Context) error {
			if o.Available() {
				return nil
			}
			var open []string
			for _, b := range o.Status() {
				open = append(open, b.Name)
			}
			return fmt.Errorf("circuit open for %s", strings.Join(open, ", "))
		},
	}
}
