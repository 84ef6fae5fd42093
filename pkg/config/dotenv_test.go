package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDotenvReadsFileWithoutOverriding(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pricing.env")
	content := "PETPRICE_DOTENV_TEST_NEW=from-file\nPETPRICE_DOTENV_TEST_SET=from-file\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("PETPRICE_ENV_FILE", path)
	t.Setenv("PETPRICE_DOTENV_TEST_SET", "from-env")
	t.Setenv("PETPRICE_DOTENV_TEST_NEW", "")
	if err := os.Unsetenv("PETPRICE_DOTENV_TEST_NEW"); err != nil {
		t.Fatalf("unset: %v", err)
	}

	got, found, err := LoadDotenv()
	if err != nil || !found || got != path {
		t.Fatalf("unexpected result path=%s found=%v err=%v", got, found, err)
	}
	if v := os.Getenv("PETPRICE_DOTENV_TEST_NEW"); v != "from-file" {
		t.Fatalf("expected value loaded from file, got %q", v)
	}
	if v := os.Getenv("PETPRICE_DOTENV_TEST_SET"); v != "from-env" {
		t.Fatalf("existing env must win, got %q", v)
	}
}

func TestLoadDotenvMissingFile(t *testing.T) {
	t.Setenv("PETPRICE_ENV_FILE", filepath.Join(t.TempDir(), "absent.env"))
	if _, found, err := LoadDotenv(); err != nil || found {
		t.Fatalf("missing file should be ignored, found=%v err=%v", found, err)
	}
}
