package schema

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/storeforge/storeforge/internal/common/apperrors"
)

// Migration is one versioned script. Versions are positive integers and
// strictly ascending within a source.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// Source yields the ordered migration scripts for one schema category.
// There is one source for the registry schema and one applied identically
// to every tenant schema.
type Source interface {
	Load() ([]Migration, apperrors.Error)
}

// scriptNameRegex matches V<version>__<name>.sql.
var scriptNameRegex = regexp.MustCompile(`^V(\d+)__([A-Za-z0-9_]+)\.sql$`)

// DirSource loads migration scripts from a directory. Files must be named
// V<version>__<name>.sql; anything else in the directory is an error so a
// misnamed script cannot be silently skipped.
type DirSource struct {
	dir string
}

// NewDirSource creates a Source reading from the given directory.
func NewDirSource(dir string) *DirSource {
	return &DirSource{dir: dir}
}

// Load reads, parses, and orders the scripts. Duplicate or non-positive
// versions are rejected.
func (s *DirSource) Load() ([]Migration, apperrors.Error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, ErrBadMigrationSource.MsgErr("unable to read migration directory "+s.dir, err)
	}

	seen := make(map[int]string)
	var migrations []Migration
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := scriptNameRegex.FindStringSubmatch(entry.Name())
		if m == nil {
			return nil, ErrBadMigrationSource.Msg("unexpected file in migration directory: " + entry.Name())
		}
		version, err := strconv.Atoi(m[1])
		if err != nil || version <= 0 {
			return nil, ErrBadMigrationSource.Msg("invalid migration version in " + entry.Name())
		}
		if prev, ok := seen[version]; ok {
			return nil, ErrBadMigrationSource.Msg("duplicate migration version in " + entry.Name() + " and " + prev)
		}
		seen[version] = entry.Name()

		sqlBytes, err := os.ReadFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			return nil, ErrBadMigrationSource.MsgErr("unable to read migration script "+entry.Name(), err)
		}
		migrations = append(migrations, Migration{
			Version: version,
			Name:    m[2],
			SQL:     string(sqlBytes),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}
