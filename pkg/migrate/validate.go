package migrate

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strconv"
	"strings"

	"go.uber.org/multierr"
)

const (
	directiveUp    = "-- +goose Up"
	directiveDown  = "-- +goose Down"
	directiveBegin = "-- +goose StatementBegin"
	directiveEnd   = "-- +goose StatementEnd"
)

// ValidateDir checks every .sql file in dir. All problems are reported together.
func ValidateDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("dir is required")
	}
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("read dir %q: %w", dir, err)
	}
	return validateFS(os.DirFS(dir), ".")
}

// ValidateEmbedded checks the migrations compiled into the binary.
func ValidateEmbedded() error {
	return validateFS(embedded, embeddedDir)
}

// ParseVersion parses a YYYYMMDDHHMMSS migration version.
func ParseVersion(raw string) (int64, error) {
	if len(raw) != len(versionLayout) {
		return 0, fmt.Errorf("version %q must have %d digits", raw, len(versionLayout))
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("version %q is not numeric", raw)
	}
	return v, nil
}

func validateFS(fsys fs.FS, dir string) error {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return fmt.Errorf("read dir %q: %w", dir, err)
	}

	var errs error
	versions := make(map[int64]string)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}
		version, err := versionFromFilename(name)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if prev, ok := versions[version]; ok {
			errs = multierr.Append(errs, fmt.Errorf("version %d used by %q and %q", version, prev, name))
			continue
		}
		versions[version] = name

		data, err := fs.ReadFile(fsys, path.Join(dir, name))
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("read %q: %w", name, err))
			continue
		}
		errs = multierr.Append(errs, checkDirectives(name, string(data)))
	}
	return errs
}

func versionFromFilename(name string) (int64, error) {
	stem := strings.TrimSuffix(name, ".sql")
	rawVersion, slug, ok := strings.Cut(stem, "_")
	if !ok || slug == "" || slugify(slug) != slug {
		return 0, fmt.Errorf("invalid migration filename %q (want YYYYMMDDHHMMSS_name.sql)", name)
	}
	version, err := ParseVersion(rawVersion)
	if err != nil {
		return 0, fmt.Errorf("invalid migration filename %q: %w", name, err)
	}
	return version, nil
}

// checkDirectives requires an Up section before a Down section and balanced
// statement blocks within each.
func checkDirectives(name, content string) error {
	var upLine, downLine, openBlock int
	scanner := bufio.NewScanner(strings.NewReader(content))
	for line := 1; scanner.Scan(); line++ {
		switch strings.TrimSpace(scanner.Text()) {
		case directiveUp:
			upLine = line
		case directiveDown:
			downLine = line
			if openBlock != 0 {
				return fmt.Errorf("migration %q: Up section has an unterminated statement block", name)
			}
		case directiveBegin:
			if openBlock != 0 {
				return fmt.Errorf("migration %q line %d: nested StatementBegin", name, line)
			}
			openBlock = line
		case directiveEnd:
			if openBlock == 0 {
				return fmt.Errorf("migration %q line %d: StatementEnd without StatementBegin", name, line)
			}
			openBlock = 0
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan %q: %w", name, err)
	}

	switch {
	case upLine == 0:
		return fmt.Errorf("migration %q missing %q", name, directiveUp)
	case downLine == 0:
		return fmt.Errorf("migration %q missing %q", name, directiveDown)
	case downLine < upLine:
		return fmt.Errorf("migration %q declares Down before Up", name)
	case openBlock != 0:
		return fmt.Errorf("migration %q line %d: unterminated statement block", name, openBlock)
	}
	return nil
}
