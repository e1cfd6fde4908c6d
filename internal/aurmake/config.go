package aurmake

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// Config struct
type Config struct {
	Values map[string]string
}

// loadConfig reads /etc/aurmake.conf and applies AURMAKE_* env overrides.
func loadConfig(path string) (*Config, error) {
	cfg := &Config{Values: make(map[string]string)}

	file, err := os.Open(path)
	if err == nil {
		defer file.Close()
		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			parts := strings.SplitN(line, "=", 2)
			if len(parts) != 2 {
				continue
			}
			key := strings.TrimSpace(parts[0])
			val := strings.TrimSpace(parts[1])
			val = strings.Trim(val, `"'`)
			cfg.Values[key] = val
		}
		if err := scanner.Err(); err != nil {
			return cfg, err
		}
	}

	mergeEnvOverrides(cfg)
	return cfg, nil
}

// Merge AURMAKE_* env overrides
func mergeEnvOverrides(cfg *Config) {
	for _, env := range os.Environ() {
		if strings.HasPrefix(env, "AURMAKE_") {
			parts := strings.SplitN(env, "=", 2)
			if len(parts) == 2 {
				cfg.Values[parts[0]] = parts[1]
			}
		}
	}
}

// initConfig resolves the directory layout from the loaded configuration.
func initConfig(cfg *Config) {
	pkgDir = cfg.Values["AURMAKE_PKG_DIR"]
	if pkgDir == "" {
		pkgDir = "/makepkg"
	}

	localSrcDir = cfg.Values["AURMAKE_LOCAL_SRC"]
	if localSrcDir == "" {
		localSrcDir = filepath.Join(pkgDir, "local_src")
	}

	buildDir = cfg.Values["AURMAKE_BUILD_DIR"]
	if buildDir == "" {
		buildDir = "/tmp/aurmake/build"
	}

	logDir = cfg.Values["AURMAKE_LOG_DIR"]
	if logDir == "" {
		logDir = "/tmp/aurmake/log"
	}

	if cfg.Values["AURMAKE_AUR_URL"] != "" {
		aurURL = cfg.Values["AURMAKE_AUR_URL"]
	}

	Debug = cfg.Values["AURMAKE_DEBUG"] == "1"
}
