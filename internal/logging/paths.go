package logging

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultLogDir returns the default log directory (~/.shopsearch/logs/).
// Falls back to temp directory if home directory is unavailable.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".shopsearch", "logs")
	}
	return filepath.Join(home, ".shopsearch", "logs")
}

// DefaultLogPath returns the default serving-process log path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "searchsvc.log")
}

// JobsLogPath returns the log path used by the baseline/retention offline
// jobs, which run as a separate process from the serving loop.
func JobsLogPath() string {
	return filepath.Join(DefaultLogDir(), "jobs.log")
}

// LogSource represents the source of logs to view.
type LogSource string

const (
	// LogSourceServe is the serving-process logs (default).
	LogSourceServe LogSource = "serve"
	// LogSourceJobs is the baseline/retention offline job logs.
	LogSourceJobs LogSource = "jobs"
	// LogSourceAll combines all log sources.
	LogSourceAll LogSource = "all"
)

// FindLogFile attempts to find the log file for viewing.
// Priority:
// 1. Explicit path (if provided)
// 2. ~/.shopsearch/logs/searchsvc.log (default)
//
// Returns an error if no log file is found.
func FindLogFile(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit, nil
		}
		return "", fmt.Errorf("log file not found: %s", explicit)
	}

	defaultPath := DefaultLogPath()
	if _, err := os.Stat(defaultPath); err == nil {
		return defaultPath, nil
	}

	return "", fmt.Errorf("no log file found. The service may not have run with --debug yet.\nExpected at: %s", defaultPath)
}

// FindLogFileBySource finds log files based on the source type.
// Returns a list of log file paths that exist.
func FindLogFileBySource(source LogSource, explicit string) ([]string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return []string{explicit}, nil
		}
		return nil, fmt.Errorf("log file not found: %s", explicit)
	}

	var paths []string
	var checked []string

	switch source {
	case LogSourceServe:
		servePath := DefaultLogPath()
		checked = append(checked, servePath)
		if _, err := os.Stat(servePath); err == nil {
			paths = append(paths, servePath)
		}

	case LogSourceJobs:
		jobsPath := JobsLogPath()
		checked = append(checked, jobsPath)
		if _, err := os.Stat(jobsPath); err == nil {
			paths = append(paths, jobsPath)
		}

	case LogSourceAll:
		servePath := DefaultLogPath()
		jobsPath := JobsLogPath()
		checked = append(checked, servePath, jobsPath)

		if _, err := os.Stat(servePath); err == nil {
			paths = append(paths, servePath)
		}
		if _, err := os.Stat(jobsPath); err == nil {
			paths = append(paths, jobsPath)
		}

	default:
		return nil, fmt.Errorf("unknown log source: %s (use: serve, jobs, all)", source)
	}

	if len(paths) == 0 {
		hint := getLogHint(source)
		return nil, fmt.Errorf("no log files found for source '%s'.\nChecked: %v\n\n%s", source, checked, hint)
	}

	return paths, nil
}

// ParseLogSource parses a string into a LogSource.
func ParseLogSource(s string) LogSource {
	switch s {
	case "jobs":
		return LogSourceJobs
	case "all":
		return LogSourceAll
	default:
		return LogSourceServe
	}
}

// EnsureLogDir creates the log directory if it doesn't exist.
func EnsureLogDir() error {
	dir := DefaultLogDir()
	return os.MkdirAll(dir, 0o755)
}

// getLogHint returns a helpful message on how to generate logs for the given source.
func getLogHint(source LogSource) string {
	switch source {
	case LogSourceServe:
		return "To generate serving logs:\n  searchsvc --debug serve"
	case LogSourceJobs:
		return "To generate job logs:\n  searchsvc --debug baseline refresh"
	case LogSourceAll:
		return "To generate logs:\n  Serve: searchsvc --debug serve\n  Jobs:  searchsvc --debug baseline refresh"
	default:
		return ""
	}
}
