package config

import (
	"os"
	"path/filepath"
)

// ResolvePath mirrors the teacher's config-file fallback search in
// cmd/main.go: an explicit path passed on the command line always wins;
// otherwise prefer a render-environment override, then the checked-in
// default, looking next to the binary before the working directory. It
// returns "" when no candidate file exists.
func ResolvePath(explicit string) string {
	if explicit != "" {
		return explicit
	}

	exeDir := "."
	if exe, err := os.Executable(); err == nil {
		exeDir = filepath.Dir(exe)
	}

	candidates := []string{
		filepath.Join(exeDir, "configs", "config_render.yaml"),
		filepath.Join(exeDir, "configs", "config.yaml"),
		"configs/config_render.yaml",
		"configs/config.yaml",
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}
