package receipts

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/cloudx-io/nftmarket/marketapi"
)

// PCRConfigEnv names an environment variable that overrides the bundled
// PCR configuration.
const PCRConfigEnv = "RECEIPTS_PCR_CONFIG"

// DefaultPCRConfigPath returns the pcrs.json shipped next to this package.
func DefaultPCRConfigPath() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "pcrs.json")
}

// ResolvePCRConfigPath picks the PCR file to load: an explicit path, then
// $RECEIPTS_PCR_CONFIG, then the bundled default.
func ResolvePCRConfigPath(path string) string {
	if path != "" {
		return path
	}
	if env := os.Getenv(PCRConfigEnv); env != "" {
		return env
	}
	return DefaultPCRConfigPath()
}

// LoadPCRsFromFile reads the known enclave builds. Every set must carry all
// three measurements.
func LoadPCRsFromFile(path string) ([]PCRSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read PCR config file: %w", err)
	}

	var config PCRConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse PCR config: %w", err)
	}
	if len(config.PCRSets) == 0 {
		return nil, fmt.Errorf("no PCR sets found in %s", path)
	}

	for i, set := range config.PCRSets {
		if set.PCR0 == "" || set.PCR1 == "" || set.PCR2 == "" {
			return nil, fmt.Errorf("PCR set #%d (commit %q) is incomplete", i, set.CommitHash)
		}
	}
	return config.PCRSets, nil
}

// ValidatePCRs returns the index of the known set matching the receipt's
// image, kernel and application measurements, or (false, -1).
func ValidatePCRs(pcrs marketapi.PCRs, knownSets []PCRSet) (bool, int) {
	if pcrs.ImageFileHash == "" {
		return false, -1
	}
	for i, set := range knownSets {
		if strings.EqualFold(pcrs.ImageFileHash, set.PCR0) &&
			strings.EqualFold(pcrs.KernelHash, set.PCR1) &&
			strings.EqualFold(pcrs.ApplicationHash, set.PCR2) {
			return true, i
		}
	}
	return false, -1
}
