package config

import "strings"

type Config struct {
	API     APIConfig
	Storage StorageConfig
	Sync    SyncConfig
	Log     LogConfig
}

type APIConfig struct {
	BaseURL string
	Token   string
}

type StorageConfig struct {
	DataDir string
}

type SyncConfig struct {
	IntervalSeconds int
	TimeoutSeconds  int
}

type LogConfig struct {
	Level string
	File  string
}

func defaults() Config {
	return Config{
		API: APIConfig{
			BaseURL: "http://127.0.0.1:4500",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Sync: SyncConfig{
			IntervalSeconds: 300,
			TimeoutSeconds:  30,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the platform-native backend, environment
// variables, and platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.sitequote.app) and the
// API token falls back to macOS Keychain.
// On Linux the backend is a JSON file at
// $XDG_CONFIG_HOME/sitequote/config.json and the token must come from the
// environment or the secrets file.
//
// Environment variables (SITEQUOTE_*) override backend values on all
// platforms. The API token is optional: the mock server ignores auth, and
// a real deployment provides it out of band.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), keychainReader{})
}

// keychain abstracts secret storage for testing.
type keychain interface {
	Get(service, account string) (string, error)
}

func loadWith(b ConfigBackend, kc keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.API.Token == "" {
		if tok, err := kc.Get("sitequote", "api_token"); err == nil && tok != "" {
			cfg.API.Token = tok
		}
	}

	return cfg, nil
}

// keychainReader reads from the platform secret store.
type keychainReader struct{}

func (keychainReader) Get(service, account string) (string, error) {
	out, err := keychainExec(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
