package config

import (
	"fmt"
	"strings"

	"github.com/pixil98/go-errors"

	"github.com/talgya/mini-town/internal/agents"
	"github.com/talgya/mini-town/internal/state"
)

// LLM providers.
const (
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
	ProviderHeuristic = "heuristic"
)

// Embedding providers.
const (
	EmbeddingHash   = "hash"
	EmbeddingGemini = "gemini"
)

// LLMProfile configures one decision or importance model.
type LLMProfile struct {
	Name      string `toml:"name"`
	Provider  string `toml:"provider"`
	Model     string `toml:"model"`
	MaxTokens int    `toml:"max_tokens"`
	// RateLimit is requests per minute; 0 is unlimited.
	RateLimit int    `toml:"rate_limit"`
	APIKeyEnv string `toml:"api_key_env"`
	Endpoint  string `toml:"endpoint"`
	Project   string `toml:"project"`
	Location  string `toml:"location"`
}

type EmbeddingProfile struct {
	Name      string `toml:"name"`
	Provider  string `toml:"provider"`
	Dimension int    `toml:"dimension"`
	Project   string `toml:"project"`
	Location  string `toml:"location"`
	Model     string `toml:"model"`
}

// Agent configures one resident.
type Agent struct {
	ID            string          `toml:"agent_id"`
	Name          string          `toml:"name"`
	Persona       string          `toml:"persona"`
	PersonaFile   string          `toml:"persona_file"`
	StartLocation string          `toml:"start_location"`
	LLMProfile    string          `toml:"llm_profile"`
	InitialState  *state.Internal `toml:"initial_state"`
}

// Spec converts the entry for the spawner.
func (a Agent) Spec() agents.Spec {
	return agents.Spec{
		ID:            a.ID,
		Name:          a.Name,
		Persona:       a.Persona,
		PersonaFile:   a.PersonaFile,
		StartLocation: a.StartLocation,
		Initial:       a.InitialState,
	}
}

// AgentSpecs returns the spawner specs of every configured agent.
func (f *File) AgentSpecs() []agents.Spec {
	out := make([]agents.Spec, len(f.Agents))
	for i, a := range f.Agents {
		out[i] = a.Spec()
	}
	return out
}

// LLMProfile looks a profile up by name.
func (f *File) LLMProfile(name string) (LLMProfile, bool) {
	for _, p := range f.LLMProfiles {
		if p.Name == name {
			return p, true
		}
	}
	return LLMProfile{}, false
}

func (f *File) EmbeddingProfile(name string) (EmbeddingProfile, bool) {
	for _, p := range f.EmbeddingProfiles {
		if p.Name == name {
			return p, true
		}
	}
	return EmbeddingProfile{}, false
}

func (p *LLMProfile) Validate() error {
	el := errors.NewErrorList()

	if p.Name == "" {
		el.Add(fmt.Errorf("name is required"))
	}
	switch strings.ToLower(p.Provider) {
	case ProviderAnthropic:
		if p.APIKeyEnv == "" {
			el.Add(fmt.Errorf("api_key_env is required for anthropic"))
		}
	case ProviderGemini:
		if p.Project == "" {
			el.Add(fmt.Errorf("project is required for gemini"))
		}
	case ProviderHeuristic:
	default:
		el.Add(fmt.Errorf("provider %q is not one of anthropic, gemini, heuristic", p.Provider))
	}
	if p.MaxTokens < 0 || p.RateLimit < 0 {
		el.Add(fmt.Errorf("max_tokens and rate_limit must not be negative"))
	}

	return el.Err()
}

func (p *EmbeddingProfile) Validate() error {
	el := errors.NewErrorList()

	if p.Name == "" {
		el.Add(fmt.Errorf("name is required"))
	}
	switch strings.ToLower(p.Provider) {
	case EmbeddingHash:
	case EmbeddingGemini:
		if p.Project == "" {
			el.Add(fmt.Errorf("project is required for gemini"))
		}
	default:
		el.Add(fmt.Errorf("provider %q is not one of hash, gemini", p.Provider))
	}
	if p.Dimension < 0 {
		el.Add(fmt.Errorf("dimension must not be negative"))
	}

	return el.Err()
}

func (f *File) validateProfiles() error {
	el := errors.NewErrorList()

	seen := make(map[string]bool)
	for i := range f.LLMProfiles {
		p := &f.LLMProfiles[i]
		if err := p.Validate(); err != nil {
			el.Add(fmt.Errorf("llm_profiles[%d]: %w", i, err))
		}
		if seen[p.Name] {
			el.Add(fmt.Errorf("llm_profiles[%d]: duplicate name %q", i, p.Name))
		}
		seen[p.Name] = true
	}

	embSeen := make(map[string]bool)
	for i := range f.EmbeddingProfiles {
		p := &f.EmbeddingProfiles[i]
		if err := p.Validate(); err != nil {
			el.Add(fmt.Errorf("embedding_profiles[%d]: %w", i, err))
		}
		if embSeen[p.Name] {
			el.Add(fmt.Errorf("embedding_profiles[%d]: duplicate name %q", i, p.Name))
		}
		embSeen[p.Name] = true
	}

	for _, ref := range []struct{ key, name string }{
		{"simulation.default_llm_profile", f.Simulation.DefaultLLMProfile},
		{"simulation.importance_llm_profile", f.Simulation.ImportanceLLMProfile},
		{"simulation.bulletin_llm_profile", f.Simulation.BulletinLLMProfile},
	} {
		if ref.name != "" && !seen[ref.name] {
			el.Add(fmt.Errorf("%s: unknown llm profile %q", ref.key, ref.name))
		}
	}
	if name := f.Simulation.EmbeddingProfile; name != "" && !embSeen[name] {
		el.Add(fmt.Errorf("simulation.embedding_profile: unknown embedding profile %q", name))
	}

	return el.Err()
}

func (f *File) validateAgents() error {
	el := errors.NewErrorList()

	ids := make(map[string]bool)
	for i, a := range f.Agents {
		if a.ID == "" {
			el.Add(fmt.Errorf("agents[%d]: agent_id is required", i))
		} else if ids[a.ID] {
			el.Add(fmt.Errorf("agents[%d]: duplicate agent_id %q", i, a.ID))
		}
		ids[a.ID] = true
		if a.StartLocation == "" {
			el.Add(fmt.Errorf("agents[%d]: start_location is required", i))
		}
		if a.LLMProfile != "" {
			if _, ok := f.LLMProfile(a.LLMProfile); !ok {
				el.Add(fmt.Errorf("agents[%d]: unknown llm profile %q", i, a.LLMProfile))
			}
		}
	}

	return el.Err()
}
