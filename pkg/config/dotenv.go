package config

import (
	"errors"
	"io/fs"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/petcare-pricing/pkg/env"
)

// LoadDotenv reads PETPRICE_ENV_FILE (default .env) into the process
// environment without overriding variables that are already set. A missing
// file is not an error; found reports whether one was read.
func LoadDotenv() (path string, found bool, err error) {
	path = env.Lookup(".env", "PETPRICE_ENV_FILE")
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return path, false, nil
		}
		return path, false, err
	}
	return path, true, nil
}
