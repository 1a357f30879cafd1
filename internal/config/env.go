package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Env resolves variables from the process environment first and the .env
// file second, the same precedence godotenv.Load gives.
type Env struct {
	file   map[string]string
	lookup func(string) (string, bool)
}

// LoadEnv reads path with godotenv. A missing file yields an empty set; a
// malformed one is an error.
func LoadEnv(path string, lookup func(string) (string, bool)) (*Env, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	env := &Env{file: map[string]string{}, lookup: lookup}
	if path == "" {
		return env, nil
	}

	values, err := godotenv.Read(path)
	if err != nil {
		if os.IsNotExist(err) {
			return env, nil
		}
		return nil, fmt.Errorf("failed to read env file '%s': %w", path, err)
	}
	env.file = values
	return env, nil
}

func (e *Env) Lookup(key string) (string, bool) {
	if v, ok := e.lookup(key); ok {
		return v, true
	}
	v, ok := e.file[key]
	return v, ok
}

// EnvPrefix turns a tap name into its override prefix: tap-github -> TAP_GITHUB.
func EnvPrefix(tap string) string {
	r := strings.NewReplacer("-", "_", ".", "_", " ", "_")
	return strings.ToUpper(r.Replace(tap))
}
