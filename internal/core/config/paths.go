package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

type ResolvedPaths struct {
	ProjectRoot string
	Roots       []string
	StorePath   string
}

// ResolvePaths turns the relative paths in cfg into absolute ones under the
// project root, which is detected from cwd when not given.
func ResolvePaths(cfg *Config, cwd string) (ResolvedPaths, error) {
	if strings.TrimSpace(cwd) == "" {
		return ResolvedPaths{}, fmt.Errorf("cwd must not be empty")
	}
	projectRoot, err := DetectProjectRoot([]string{cwd})
	if err != nil {
		return ResolvedPaths{}, err
	}

	roots := make([]string, 0, len(cfg.Workspace.Roots))
	seen := make(map[string]bool, len(cfg.Workspace.Roots))
	for _, root := range cfg.Workspace.Roots {
		abs := ResolveRelative(cwd, root)
		if seen[abs] {
			continue
		}
		seen[abs] = true
		roots = append(roots, abs)
	}

	return ResolvedPaths{
		ProjectRoot: projectRoot,
		Roots:       roots,
		StorePath:   ResolveRelative(projectRoot, cfg.Diagnostics.StorePath),
	}, nil
}

func ResolveRelative(base, value string) string {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return filepath.Clean(base)
	}
	if filepath.IsAbs(raw) {
		return filepath.Clean(raw)
	}
	return filepath.Clean(filepath.Join(base, raw))
}

// DetectProjectRoot walks up from each candidate looking for a project marker.
func DetectProjectRoot(candidates []string) (string, error) {
	markers := []string{
		DefaultFile,
		".uproject",
		".git",
	}

	for _, candidate := range candidates {
		if strings.TrimSpace(candidate) == "" {
			continue
		}

		abs, err := filepath.Abs(candidate)
		if err != nil {
			continue
		}
		root := abs
		if info, err := os.Stat(abs); err == nil && !info.IsDir() {
			root = filepath.Dir(abs)
		}

		for {
			for _, marker := range markers {
				if hasMarker(root, marker) {
					return filepath.Clean(root), nil
				}
			}
			parent := filepath.Dir(root)
			if parent == root {
				break
			}
			root = parent
		}
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Clean(cwd), nil
}

func hasMarker(dir, marker string) bool {
	if strings.HasPrefix(marker, ".") && marker != ".git" {
		matches, _ := filepath.Glob(filepath.Join(dir, "*"+marker))
		return len(matches) > 0
	}
	_, err := os.Stat(filepath.Join(dir, marker))
	return err == nil
}
