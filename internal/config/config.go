// Package config loads and validates the town configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/pelletier/go-toml/v2"
	"github.com/pixil98/go-errors"
)

// Defaults applied to a freshly loaded file.
const (
	DefaultTimeScale   = 4.0
	DefaultDecayFactor = 0.99
	DefaultTopK        = 10
	DefaultAPIAddr     = "127.0.0.1:8080"
	DefaultSQLitePath  = "data/town.db"
)

// File is the whole configuration file.
type File struct {
	Simulation        Simulation         `toml:"simulation"`
	Data              Data               `toml:"data"`
	Memory            Memory             `toml:"memory"`
	Nats              Nats               `toml:"nats"`
	API               API                `toml:"api"`
	LLMProfiles       []LLMProfile       `toml:"llm_profiles"`
	EmbeddingProfiles []EmbeddingProfile `toml:"embedding_profiles"`
	Agents            []Agent            `toml:"agents"`

	dir string
}

type Simulation struct {
	StartTime   string  `toml:"start_time"` // RFC3339
	TimeScale   float64 `toml:"time_scale"`
	DecayFactor float64 `toml:"decay_factor"`
	TopK        int     `toml:"top_k"`
	Seed        uint64  `toml:"seed"` // 0 seeds from the OS
	// DefaultLLMProfile is used by agents without their own profile. Empty
	// means the rule-based decider.
	DefaultLLMProfile string `toml:"default_llm_profile"`
	EmbeddingProfile  string `toml:"embedding_profile"`
	// ImportanceLLMProfile rates memory importance. Empty means the keyword
	// heuristic.
	ImportanceLLMProfile string `toml:"importance_llm_profile"`
	// BulletinLLMProfile writes the daily bulletin. Empty means plain text.
	BulletinLLMProfile string `toml:"bulletin_llm_profile"`
}

// Data names the world data files. Relative paths are resolved against the
// config file's directory.
type Data struct {
	Locations   string `toml:"locations"`
	Connections string `toml:"connections"`
	Objects     string `toml:"objects"` // optional; built-in catalog when empty
	PersonaDir  string `toml:"persona_dir"`
}

type API struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
	// AdminKeyEnv names the environment variable holding the bearer token
	// for admin endpoints. Admin endpoints are disabled without one.
	AdminKeyEnv string `toml:"admin_key_env"`
}

// AdminKey reads the admin token from the environment.
func (a *API) AdminKey() string {
	if a.AdminKeyEnv == "" {
		return ""
	}
	return os.Getenv(a.AdminKeyEnv)
}

// Load reads, defaults and validates the file at path.
func Load(path string) (*File, error) {
	// #nosec G304 - path comes from the command line
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read config file", goerr.V("path", path))
	}
	f, err := Parse(data)
	if err != nil {
		return nil, goerr.Wrap(err, "invalid config file", goerr.V("path", path))
	}
	f.dir = filepath.Dir(path)
	return f, nil
}

// Parse decodes TOML, applies defaults and validates.
func Parse(data []byte) (*File, error) {
	var f File
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, goerr.Wrap(err, "failed to parse TOML config")
	}
	f.applyDefaults()
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *File) applyDefaults() {
	if f.Simulation.TimeScale == 0 {
		f.Simulation.TimeScale = DefaultTimeScale
	}
	if f.Simulation.DecayFactor == 0 {
		f.Simulation.DecayFactor = DefaultDecayFactor
	}
	if f.Simulation.TopK == 0 {
		f.Simulation.TopK = DefaultTopK
	}
	if f.Memory.Backend == "" {
		f.Memory.Backend = BackendMemory
	}
	if f.Memory.Backend == BackendSQLite && f.Memory.SQLitePath == "" {
		f.Memory.SQLitePath = DefaultSQLitePath
	}
	if f.API.Addr == "" {
		f.API.Addr = DefaultAPIAddr
	}
}

// Validate reports every problem in the file at once.
func (f *File) Validate() error {
	el := errors.NewErrorList()

	if f.Simulation.StartTime != "" {
		if _, err := time.Parse(time.RFC3339, f.Simulation.StartTime); err != nil {
			el.Add(fmt.Errorf("simulation.start_time: %w", err))
		}
	}
	if f.Simulation.TimeScale < 0 {
		el.Add(fmt.Errorf("simulation.time_scale must be positive"))
	}
	if f.Simulation.DecayFactor <= 0 || f.Simulation.DecayFactor > 1 {
		el.Add(fmt.Errorf("simulation.decay_factor must be in (0, 1]"))
	}
	if f.Simulation.TopK < 0 {
		el.Add(fmt.Errorf("simulation.top_k must be positive"))
	}
	if f.Data.Locations == "" {
		el.Add(fmt.Errorf("data.locations is required"))
	}
	if f.Data.Connections == "" {
		el.Add(fmt.Errorf("data.connections is required"))
	}

	el.Add(f.Memory.Validate())
	el.Add(f.Nats.Validate())
	el.Add(f.validateProfiles())
	el.Add(f.validateAgents())

	return el.Err()
}

// StartTime is the configured simulated start, or fallback.
func (f *File) StartTime(fallback time.Time) time.Time {
	if f.Simulation.StartTime == "" {
		return fallback
	}
	t, err := time.Parse(time.RFC3339, f.Simulation.StartTime)
	if err != nil {
		return fallback
	}
	return t
}

// Path resolves a data path relative to the config file.
func (f *File) Path(p string) string {
	if p == "" || filepath.IsAbs(p) || f.dir == "" {
		return p
	}
	return filepath.Join(f.dir, p)
}

// PersonaDir is the directory persona files are read from.
func (f *File) PersonaDir() string {
	if f.Data.PersonaDir == "" {
		return f.dir
	}
	return f.Path(f.Data.PersonaDir)
}
