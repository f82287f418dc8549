package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/wippyai/wasm-boot/engine"
	"github.com/wippyai/wasm-boot/errors"
)

// envPrefix namespaces the environment variables bound to flags,
// e.g. IMGBOOT_CACHE_DIR for --cache-dir.
const envPrefix = "IMGBOOT"

// Flag and config keys.
const (
	keyConfig           = "config"
	keyArgv0            = "argv0"
	keyEntry            = "entry"
	keyCacheDir         = "cache-dir"
	keyMemoryLimitPages = "memory-limit-pages"
	keyEnv              = "env"
	keyMount            = "mount"
	keyLogLevel         = "log-level"
	keyLog              = "log"
)

// runConfig is the resolved configuration of one launch.
type runConfig struct {
	Argv0            string
	Entry            string
	CacheDir         string
	LogLevel         string
	Log              string
	Env              map[string]string
	Mounts           []engine.Mount
	MemoryLimitPages uint32
}

func addRunFlags(fs *pflag.FlagSet) {
	fs.String(keyConfig, "", "Config file (YAML, TOML or JSON) with the same keys as the flags")
	fs.String(keyArgv0, "", "Argument 0 seen by the program (defaults to the image path)")
	fs.String(keyEntry, "", "Entry function of a native image (default \""+engine.DefaultEntry+"\")")
	fs.String(keyCacheDir, "", "Directory for compiled code reused between runs")
	fs.Uint32(keyMemoryLimitPages, 0, "Maximum memory of the image in 64KiB pages (0 means no extra limit)")
	fs.StringSlice(keyEnv, nil, "Environment variable for the program as KEY=VALUE (repeatable)")
	fs.StringSlice(keyMount, nil, "Host directory exposed to the program as host:guest (repeatable)")
	fs.String(keyLogLevel, "", "Launcher log level: debug, info, warn, error (default off)")
	fs.String(keyLog, "", "Debug sections as prefixes:file (boot:boot.log), or a file name for all sections")
}

// newViper layers fs, IMGBOOT_* environment variables and the optional config file.
func newViper(fs *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(fs); err != nil {
		return nil, errors.InvalidConfig("bind flags", err)
	}

	if path := v.GetString(keyConfig); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.InvalidConfig(fmt.Sprintf("read config %s", path), err)
		}
	}
	return v, nil
}

// loadConfig resolves and validates the launch configuration.
func loadConfig(v *viper.Viper) (runConfig, error) {
	cfg := runConfig{
		Argv0:            v.GetString(keyArgv0),
		Entry:            v.GetString(keyEntry),
		CacheDir:         v.GetString(keyCacheDir),
		LogLevel:         v.GetString(keyLogLevel),
		Log:              v.GetString(keyLog),
		MemoryLimitPages: v.GetUint32(keyMemoryLimitPages),
	}

	env, err := parseEnv(v.GetStringSlice(keyEnv))
	if err != nil {
		return runConfig{}, err
	}
	cfg.Env = env

	mounts, err := parseMounts(v.GetStringSlice(keyMount))
	if err != nil {
		return runConfig{}, err
	}
	cfg.Mounts = mounts

	if cfg.MemoryLimitPages > 65536 {
		return runConfig{}, errors.InvalidConfig(
			fmt.Sprintf("%s %d exceeds 65536 pages (4GiB)", keyMemoryLimitPages, cfg.MemoryLimitPages), nil)
	}
	return cfg, nil
}

// parseEnv parses KEY=VALUE pairs. Later pairs override earlier ones.
func parseEnv(kvs []string) (map[string]string, error) {
	if len(kvs) == 0 {
		return nil, nil
	}
	env := make(map[string]string, len(kvs))
	for _, kv := range kvs {
		k, val, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, errors.InvalidConfig(fmt.Sprintf("env %q is not KEY=VALUE", kv), nil)
		}
		env[k] = val
	}
	return env, nil
}

// parseMounts parses host:guest specs. A spec without a guest path, or whose
// last colon belongs to a drive letter, mounts the host directory at "/".
func parseMounts(specs []string) ([]engine.Mount, error) {
	mounts := make([]engine.Mount, 0, len(specs))
	seen := make(map[string]string, len(specs))
	for _, spec := range specs {
		m := engine.Mount{Host: spec, Guest: "/"}
		if i := strings.LastIndex(spec, ":"); i >= 0 && strings.HasPrefix(spec[i+1:], "/") {
			m = engine.Mount{Host: spec[:i], Guest: spec[i+1:]}
		}
		if m.Host == "" {
			return nil, errors.InvalidConfig(fmt.Sprintf("mount %q has no host directory", spec), nil)
		}
		if prev, ok := seen[m.Guest]; ok {
			return nil, errors.InvalidConfig(
				fmt.Sprintf("mount %q: guest path %s already mounted from %s", spec, m.Guest, prev), nil)
		}
		seen[m.Guest] = m.Host
		mounts = append(mounts, m)
	}
	return mounts, nil
}

// envList renders env sorted, for logging.
func envList(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k := range env {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
