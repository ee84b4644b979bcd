package analysis

import (
	"strings"

	apperrors "github.com/scrutineering/scrutineer/internal/pkg/errors"
	"github.com/scrutineering/scrutineer/internal/voting"
	"github.com/scrutineering/scrutineer/internal/voting/borda"
	"github.com/scrutineering/scrutineer/internal/voting/relplace"
	"github.com/scrutineering/scrutineer/internal/voting/schulze"
	"github.com/scrutineering/scrutineer/internal/voting/seqirv"
)

// Registry holds the voting systems an analysis runs, in report order.
// Adding a system is one entry in NewRegistry.
type Registry struct {
	systems []voting.System
}

// NewRegistry returns the standard registry: Borda Count, Relative
// Placement, Schulze Method, Sequential IRV. The picker feeds Sequential
// IRV's random elimination fallback; nil selects a time-seeded source.
func NewRegistry(picker voting.Picker) *Registry {
	return &Registry{
		systems: []voting.System{
			borda.New(),
			relplace.New(),
			schulze.New(),
			seqirv.New(picker),
		},
	}
}

// Systems returns the registered systems in report order.
func (r *Registry) Systems() []voting.System {
	return r.systems
}

// Names returns the registered system names in report order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.systems))
	for i, system := range r.systems {
		names[i] = system.Name()
	}
	return names
}

// Get returns the registered system with the given name, matched
// case-insensitively.
func (r *Registry) Get(name string) (voting.System, error) {
	for _, system := range r.systems {
		if strings.EqualFold(system.Name(), name) {
			return system, nil
		}
	}
	return nil, apperrors.UnknownSystemError(name)
}

// SystemInfo describes one registered system for listings.
type SystemInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Describe returns name and description for every registered system.
func (r *Registry) Describe() []SystemInfo {
	infos := make([]SystemInfo, len(r.systems))
	for i, system := range r.systems {
		infos[i] = SystemInfo{
			Name:        system.Name(),
			Description: system.Description(),
		}
	}
	return infos
}
