package testbed

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-harness/types"
)

const (
	timestampFormat = "2006-01-02_15-04-05.000"
	latestLinkName  = "latest"
	configFileName  = "config.json"
	summaryFileName = "test_run_summary.json"
	defaultDirPerm  = 0o755
	defaultFilePerm = 0o644
)

// createLogDir creates <logPath>/<testBed>/<timestamp> and points the
// <logPath>/<testBed>/latest symlink at it. Failing to update the symlink is
// only logged.
func createLogDir(logger log.Logger, logPath, testBed string, now time.Time) (string, error) {
	base := filepath.Join(logPath, testBed)
	dir := filepath.Join(base, now.Format(timestampFormat))
	if err := os.MkdirAll(dir, defaultDirPerm); err != nil {
		return "", fmt.Errorf("failed to create log directory: %w", err)
	}

	link := filepath.Join(base, latestLinkName)
	if err := os.Remove(link); err != nil && !os.IsNotExist(err) {
		logger.Warn("Failed to remove latest log link", "link", link, "err", err)
		return dir, nil
	}
	if err := os.Symlink(filepath.Base(dir), link); err != nil {
		logger.Warn("Failed to create latest log link", "link", link, "err", err)
	}
	return dir, nil
}

// runSummary is the content of test_run_summary.json
type runSummary struct {
	Results []*types.TestRecord `json:"Results"`
	Summary types.Summary       `json:"Summary"`
}

// writeJSONFile writes v to path through a temp file and rename, so readers
// never observe a partial file.
func writeJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), defaultFilePerm); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
