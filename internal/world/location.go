// Package world holds the town's static geography: locations, the travel
// graph between them, the object catalog, and the job occupancy ledger.
package world

import (
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

// LocationType classifies what a place is used for.
type LocationType string

const (
	LocationResidential    LocationType = "residential"
	LocationCommercial     LocationType = "commercial"
	LocationOutdoor        LocationType = "outdoor"
	LocationTransit        LocationType = "transit"
	LocationInternalPublic LocationType = "internal_public"
	LocationExternalPublic LocationType = "external_public"
	LocationService        LocationType = "service"
	LocationWorkplace      LocationType = "workplace"
)

// ParseLocationType accepts snake_case, kebab-case or any casing.
func ParseLocationType(s string) (LocationType, bool) {
	norm := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	switch t := LocationType(norm); t {
	case LocationResidential, LocationCommercial, LocationOutdoor, LocationTransit,
		LocationInternalPublic, LocationExternalPublic, LocationService, LocationWorkplace:
		return t, true
	}
	return "", false
}

// Location is a named place agents can stand in.
type Location struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Type        LocationType   `json:"type"`
	Objects     []string       `json:"objects,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	Services    map[string]int `json:"services,omitempty"`       // service → base price
	Jobs        map[string]int `json:"available_jobs,omitempty"` // job type → max concurrent workers
	Coordinates *[2]float64    `json:"coordinates,omitempty"`
}

// Validate checks a location row before it is loaded.
func (l *Location) Validate() error {
	if strings.TrimSpace(l.Name) == "" {
		return goerr.New("location name is empty")
	}
	t, ok := ParseLocationType(string(l.Type))
	if !ok {
		return goerr.New("unknown location type", goerr.V("name", l.Name), goerr.V("type", l.Type))
	}
	l.Type = t
	for job, n := range l.Jobs {
		if n < 0 {
			return goerr.New("negative job capacity", goerr.V("name", l.Name), goerr.V("job", job))
		}
	}
	return nil
}

// HasTag reports whether the location carries tag.
func (l Location) HasTag(tag string) bool {
	for _, t := range l.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// HasObject reports whether the named object is placed here.
func (l Location) HasObject(name string) bool {
	for _, o := range l.Objects {
		if o == name {
			return true
		}
	}
	return false
}

// IsHome reports whether agents can sleep, shower and eat privately here.
func (l Location) IsHome() bool {
	return l.Type == LocationResidential
}
