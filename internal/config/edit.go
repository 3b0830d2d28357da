package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Get reads a dotted path (gjson syntax) from the raw config file.
func Get(path, key string) (string, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if !gjson.ValidBytes(data) {
		return "", false, fmt.Errorf("config file %s is not valid JSON", path)
	}
	res := gjson.GetBytes(data, key)
	if !res.Exists() {
		return "", false, nil
	}
	return res.String(), true, nil
}

// Set writes value at a dotted path (sjson syntax) in the raw config file,
// creating the file when missing. Values that parse as a bool or a number
// are stored with that JSON type; everything else is stored as a string.
func Set(path, key, value string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		data = []byte("{}")
	}

	var typed any = value
	if value == "true" || value == "false" {
		typed = value == "true"
	} else if n, err := strconv.ParseInt(value, 10, 64); err == nil {
		typed = n
	} else if f, err := strconv.ParseFloat(value, 64); err == nil {
		typed = f
	}

	out, err := sjson.SetBytesOptions(data, key, typed, &sjson.Options{Optimistic: false})
	if err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	out = []byte(gjson.GetBytes(out, "@pretty").Raw)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return os.WriteFile(path, out, 0o600)
}
