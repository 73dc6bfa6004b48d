package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// UserEnvFile returns the per-user settings file, diffsum/env under the
// user's config directory, or "" when there is no such directory.
func UserEnvFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "diffsum", "env")
}

// LoadDotEnv copies settings from dotenv files into the environment.
// Variables that are already set are never replaced, so the first file to
// set a variable wins. Empty paths and missing files are skipped.
func LoadDotEnv(paths ...string) error {
	for _, path := range paths {
		if path == "" {
			continue
		}
		values, err := godotenv.Read(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		for key, value := range values {
			if _, set := os.LookupEnv(key); set {
				continue
			}
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("set %s: %w", key, err)
			}
		}
	}
	return nil
}

// LoadConfig builds the application config. Precedence, highest first: the
// process environment, envPath (".env" when empty), then the per-user
// settings file.
func LoadConfig(envPath string) (AppConfig, error) {
	if envPath == "" {
		envPath = ".env"
	}
	if err := LoadDotEnv(envPath, UserEnvFile()); err != nil {
		return AppConfig{}, err
	}

	envCfg, err := LoadFromEnv()
	if err != nil {
		return AppConfig{}, err
	}

	return envCfg.ToAppConfig(), nil
}
