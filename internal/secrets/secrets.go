// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets loads private settings from a directory of plain-text files
// kept out of version control. Each file is one secret: the filename is the
// key and the trimmed contents are the value.
//
// bibfetch reads contact-email, the address sent to Crossref and OpenAlex
// for their polite pools.
package secrets

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Secrets maps key names to values.
type Secrets map[string]string

// Keys returns the loaded key names, sorted. Values are never listed.
func (s Secrets) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Load reads all files in dir. A missing directory is not an error; Load
// returns an empty set. Unreadable files are reported on warn and skipped.
func Load(dir string, warn io.Writer) (Secrets, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return Secrets{}, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	secrets := make(Secrets)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			fmt.Fprintf(warn, "warning: could not read secret %s: %v\n", name, err)
			continue
		}
		if value := strings.TrimSpace(string(data)); value != "" {
			secrets[name] = value
		}
	}
	return secrets, nil
}
