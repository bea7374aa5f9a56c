package world

import (
	"encoding/json"
	"log/slog"
	"os"

	"github.com/m-mizutani/goerr/v2"
)

// LoadLocationsFile reads a JSON array of locations. Rows that fail to
// decode are skipped; a missing file or a non-array document is an error.
func LoadLocationsFile(path string) ([]Location, error) {
	// #nosec G304 - path comes from configuration
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read locations file", goerr.V("path", path))
	}

	var rows []json.RawMessage
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, goerr.Wrap(err, "locations file is not a JSON array", goerr.V("path", path))
	}

	locations := make([]Location, 0, len(rows))
	for i, row := range rows {
		var loc Location
		if err := json.Unmarshal(row, &loc); err != nil {
			slog.Warn("skipping malformed location row", "path", path, "row", i, "error", err)
			continue
		}
		locations = append(locations, loc)
	}
	return locations, nil
}

// LoadConnectionsFile reads a JSON object of {from: {to: minutes}}.
// Entries whose travel time is not an integer are skipped.
func LoadConnectionsFile(path string) (map[string]map[string]int, error) {
	// #nosec G304 - path comes from configuration
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read connections file", goerr.V("path", path))
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, goerr.Wrap(err, "connections file is not a JSON object", goerr.V("path", path))
	}

	conns := make(map[string]map[string]int, len(raw))
	for _, from := range sortedKeys(raw) {
		var targets map[string]json.RawMessage
		if err := json.Unmarshal(raw[from], &targets); err != nil {
			slog.Warn("skipping malformed connection row", "from", from, "error", err)
			continue
		}
		for _, to := range sortedKeys(targets) {
			var minutes int
			if err := json.Unmarshal(targets[to], &minutes); err != nil {
				slog.Warn("skipping malformed travel time", "from", from, "to", to, "error", err)
				continue
			}
			if conns[from] == nil {
				conns[from] = make(map[string]int)
			}
			conns[from][to] = minutes
		}
	}
	return conns, nil
}

// LoadMapFiles builds a map from a locations file and a connections file.
func LoadMapFiles(locationsPath, connectionsPath string) (*Map, error) {
	locs, err := LoadLocationsFile(locationsPath)
	if err != nil {
		return nil, err
	}
	conns, err := LoadConnectionsFile(connectionsPath)
	if err != nil {
		return nil, err
	}

	m := NewMap()
	m.Load(locs, conns)
	return m, nil
}
