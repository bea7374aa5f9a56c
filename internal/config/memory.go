package config

import (
	"fmt"

	"github.com/pixil98/go-errors"
)

// Memory backends.
const (
	BackendMemory    = "memory"
	BackendSQLite    = "sqlite"
	BackendFirestore = "firestore"
)

type Memory struct {
	Backend           string `toml:"backend"`
	SQLitePath        string `toml:"sqlite_path"`
	FirestoreProject  string `toml:"firestore_project"`
	FirestoreDatabase string `toml:"firestore_database"`
	FirestorePrefix   string `toml:"firestore_prefix"`
}

func (m *Memory) Validate() error {
	el := errors.NewErrorList()

	switch m.Backend {
	case BackendMemory, BackendSQLite:
	case BackendFirestore:
		if m.FirestoreProject == "" {
			el.Add(fmt.Errorf("memory.firestore_project is required for the firestore backend"))
		}
	default:
		el.Add(fmt.Errorf("memory.backend %q is not one of memory, sqlite, firestore", m.Backend))
	}

	return el.Err()
}
