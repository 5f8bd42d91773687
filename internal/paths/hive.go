// Package paths provides hive workspace path resolution.
package paths

import (
	"os"
	"path/filepath"
)

// Well-known file and directory names inside the hive directory.
const (
	ConfigFile  = "config.yaml"
	DBFile      = "hive.db"
	LockFile    = "hive.lock"
	PidFile     = "manager.pid"
	LogsDir     = "logs"
	MemoryDir   = "memory"
	ReposDir    = "repos"
	LogFile     = "hive.log"
)

// ResolveHiveDir resolves the hive directory from user input.
//
// Resolution order:
//  1. explicit path argument (--hive-dir)
//  2. HIVE_DIR environment variable
//  3. a .hive directory found walking up from the working directory
//  4. ./.hive
func ResolveHiveDir(path string) string {
	if path == "" {
		path = os.Getenv("HIVE_DIR")
	}
	if path != "" {
		path = filepath.Clean(path)
		// Accept either the project dir or the .hive dir itself.
		if filepath.Base(path) == ".hive" {
			return path
		}
		if _, err := os.Stat(filepath.Join(path, DBFile)); err == nil {
			return path
		}
		return filepath.Join(path, ".hive")
	}

	wd, err := os.Getwd()
	if err != nil {
		return ".hive"
	}
	if found := findUp(wd); found != "" {
		return found
	}
	return filepath.Join(wd, ".hive")
}

// findUp walks from dir to the filesystem root looking for a .hive directory.
func findUp(dir string) string {
	for {
		candidate := filepath.Join(dir, ".hive")
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// Config returns the config file path for a hive dir.
func Config(hiveDir string) string { return filepath.Join(hiveDir, ConfigFile) }

// DB returns the database path for a hive dir.
func DB(hiveDir string) string { return filepath.Join(hiveDir, DBFile) }

// Lock returns the write-lock path for a hive dir.
func Lock(hiveDir string) string { return filepath.Join(hiveDir, LockFile) }

// Pid returns the manager pid-file path for a hive dir.
func Pid(hiveDir string) string { return filepath.Join(hiveDir, PidFile) }

// Logs returns the runtime log directory for a hive dir.
func Logs(hiveDir string) string { return filepath.Join(hiveDir, LogsDir) }

// Log returns the runtime log path for a hive dir.
func Log(hiveDir string) string { return filepath.Join(hiveDir, LogsDir, LogFile) }

// Memory returns the agent-memory snapshot dir for a hive dir.
func Memory(hiveDir string) string { return filepath.Join(hiveDir, MemoryDir) }

// Repos returns the repositories root for a hive dir.
func Repos(hiveDir string) string { return filepath.Join(hiveDir, ReposDir) }

// TeamRepo returns the working-tree path for a team repo path relative to
// the repositories root.
func TeamRepo(hiveDir, repoPath string) string {
	return filepath.Join(Repos(hiveDir), repoPath)
}
