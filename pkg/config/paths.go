package config

import (
	"os"
	"path/filepath"
	"runtime"
)

const appName = "mentorloop"

// windows: C:\Users\{user}\AppData\Roaming\mentorloop
// macOS: ~/Library/Application Support/mentorloop
// linux: ~/.config/mentorloop
//
// Returns "" when no home directory can be determined.
func GetConfigDir() string {
	switch runtime.GOOS {
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return ""
			}
			appData = filepath.Join(home, "AppData", "Roaming")
		}
		return filepath.Join(appData, appName)

	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		return filepath.Join(home, "Library", "Application Support", appName)

	default:
		xdgConfig := os.Getenv("XDG_CONFIG_HOME")
		if xdgConfig == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return ""
			}
			xdgConfig = filepath.Join(home, ".config")
		}
		return filepath.Join(xdgConfig, appName)
	}
}

// windows: C:\Users\{user}\AppData\Local\mentorloop
// macOS: ~/Library/Caches/mentorloop
// linux: ~/.cache/mentorloop
func GetCacheDir() string {
	switch runtime.GOOS {
	case "windows":
		localAppData := os.Getenv("LOCALAPPDATA")
		if localAppData == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return filepath.Join(os.TempDir(), appName)
			}
			localAppData = filepath.Join(home, "AppData", "Local")
		}
		return filepath.Join(localAppData, appName)

	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(os.TempDir(), appName)
		}
		return filepath.Join(home, "Library", "Caches", appName)

	default:
		xdgCache := os.Getenv("XDG_CACHE_HOME")
		if xdgCache == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return filepath.Join(os.TempDir(), appName)
			}
			xdgCache = filepath.Join(home, ".cache")
		}
		return filepath.Join(xdgCache, appName)
	}
}

func GetDefaultConfigPath() string {
	dir := GetConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "config.yaml")
}

// GetModelCacheDir is where downloaded student model files are kept.
func GetModelCacheDir(modelName string) string {
	return filepath.Join(GetCacheDir(), "models", filepath.FromSlash(modelName))
}
