// Agent spawning: turns configured agent specs into registered agents.

package agents

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/m-mizutani/goerr/v2"

	"github.com/talgya/mini-town/internal/state"
	"github.com/talgya/mini-town/internal/world"
)

// Spec describes one configured resident.
type Spec struct {
	ID            string
	Name          string
	Persona       string // inline persona; wins over PersonaFile
	PersonaFile   string
	StartLocation string
	Initial       *state.Internal // nil means state.Default()
}

// Spawner creates agents for the simulation.
type Spawner struct {
	world   *world.Map
	baseDir string
}

// NewSpawner resolves relative persona files against baseDir.
func NewSpawner(m *world.Map, baseDir string) *Spawner {
	return &Spawner{world: m, baseDir: baseDir}
}

// Spawn builds one agent from spec.
func (s *Spawner) Spawn(spec Spec) (*Agent, error) {
	if strings.TrimSpace(spec.ID) == "" {
		return nil, goerr.New("agent id is empty", goerr.V("name", spec.Name))
	}
	if !s.world.IsValidLocation(spec.StartLocation) {
		return nil, goerr.New("unknown start location", goerr.V("id", spec.ID), goerr.V("location", spec.StartLocation))
	}

	persona := strings.TrimSpace(spec.Persona)
	if persona == "" && spec.PersonaFile != "" {
		path := spec.PersonaFile
		if !filepath.IsAbs(path) {
			path = filepath.Join(s.baseDir, path)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to read persona file", goerr.V("id", spec.ID), goerr.V("path", path))
		}
		persona = strings.TrimSpace(string(data))
	}

	name := spec.Name
	if name == "" {
		name = spec.ID
	}
	st := state.Default()
	if spec.Initial != nil {
		st = *spec.Initial
	}
	return NewAgent(spec.ID, name, persona, spec.StartLocation, st), nil
}

// SpawnInto builds and registers every spec. It stops at the first error.
func (s *Spawner) SpawnInto(r *Registry, specs []Spec) error {
	for _, spec := range specs {
		a, err := s.Spawn(spec)
		if err != nil {
			return err
		}
		if err := r.Register(a); err != nil {
			return err
		}
	}
	return nil
}
