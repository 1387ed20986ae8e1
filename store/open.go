package store

import (
	"fmt"
	"strings"

	"github.com/etnz/holdings"
	"github.com/rs/zerolog"
)

const (
	BackendMemory = "memory"
	BackendFiles  = "files"
	BackendSQLite = "sqlite"
)

// Open returns a store for the provided backend spec.
// Examples:
//   - "memory"
//   - "files:/var/lib/hld"
//   - "sqlite:/var/lib/hld/holdings.db"
//
// A spec without a backend is treated as a files directory.
func Open(spec string, log zerolog.Logger) (holdings.Store, error) {
	backend, arg := parseSpec(spec)
	switch backend {
	case BackendMemory:
		return NewMemory(), nil
	case BackendFiles:
		if arg == "" {
			arg = "holdings"
		}
		return NewFiles(arg, log)
	case BackendSQLite:
		if arg == "" {
			arg = "holdings.db"
		}
		return OpenSQLite(arg, log)
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", backend)
	}
}

func parseSpec(spec string) (backend, arg string) {
	if spec == "" {
		return BackendFiles, ""
	}
	b, a, found := strings.Cut(spec, ":")
	if !found {
		switch b = strings.ToLower(b); b {
		case BackendMemory, BackendFiles, BackendSQLite:
			return b, ""
		default:
			return BackendFiles, spec
		}
	}
	return strings.ToLower(b), a
}
