package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cloudx-io/nftmarket/marketapi"
)

// writeDeployment saves the deployment record as indented JSON, creating the
// parent directory (typically deployments/) when needed.
func writeDeployment(path string, d marketapi.Deployment) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create deployments dir: %w", err)
		}
	}

	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal deployment: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write deployment: %w", err)
	}
	return nil
}

// readDeployment loads a record written by writeDeployment.
func readDeployment(path string) (marketapi.Deployment, error) {
	var d marketapi.Deployment
	data, err := os.ReadFile(path)
	if err != nil {
		return d, fmt.Errorf("read deployment: %w", err)
	}
	if err := json.Unmarshal(data, &d); err != nil {
		return d, fmt.Errorf("parse deployment %s: %w", path, err)
	}
	return d, nil
}
