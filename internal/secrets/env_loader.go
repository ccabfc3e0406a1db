package secrets

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
)

// EnvLoader returns a Loader reading the given environment variables.
// Unset variables are omitted.
func EnvLoader(keys ...string) Loader {
	return func() (map[string]string, error) {
		vals := make(map[string]string, len(keys))
		for _, k := range keys {
			if v := os.Getenv(k); v != "" {
				vals[k] = v
			}
		}
		return vals, nil
	}
}

// DotEnvLoader returns a Loader reading KEY=VALUE lines from path, keeping
// only the given keys. Blank lines and lines starting with # are skipped,
// an optional "export " prefix is accepted and matching quotes are stripped.
// A missing file yields an empty map.
func DotEnvLoader(path string, keys ...string) Loader {
	wanted := make(map[string]bool, len(keys))
	for _, k := range keys {
		wanted[k] = true
	}
	return func() (map[string]string, error) {
		vals := map[string]string{}
		if path == "" {
			return vals, nil
		}
		f, err := os.Open(path) //nolint:gosec // operator-supplied env file
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return vals, nil
			}
			return nil, err
		}
		defer f.Close()

		sc := bufio.NewScanner(f)
		line := 0
		for sc.Scan() {
			line++
			text := strings.TrimSpace(sc.Text())
			if text == "" || strings.HasPrefix(text, "#") {
				continue
			}
			text = strings.TrimPrefix(text, "export ")
			key, val, ok := strings.Cut(text, "=")
			if !ok {
				return nil, fmt.Errorf("%s:%d: expected KEY=VALUE", path, line)
			}
			key = strings.TrimSpace(key)
			if !wanted[key] {
				continue
			}
			vals[key] = unquote(strings.TrimSpace(val))
		}
		return vals, sc.Err()
	}
}

// Chain merges loaders in order; later loaders override earlier ones.
func Chain(loaders ...Loader) Loader {
	return func() (map[string]string, error) {
		out := map[string]string{}
		for _, l := range loaders {
			vals, err := l()
			if err != nil {
				return nil, err
			}
			for k, v := range vals {
				if v != "" {
					out[k] = v
				}
			}
		}
		return out, nil
	}
}

func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}
