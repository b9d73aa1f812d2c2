package pipeline

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// LoadManifest reads a YAML list of jobs. Relative paths are resolved
// against the manifest's directory.
//
//	- path: docs/Demo NDA.docx
//	  contractType: non_disclosure_agreement
//	  perspective: disclosing-party
//	  solution: {id: nda, key: nda, title: Non-Disclosure Agreement}
func LoadManifest(path string) ([]Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var jobs []Job
	if err := yaml.Unmarshal(data, &jobs); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}
	if len(jobs) == 0 {
		return nil, fmt.Errorf("manifest %s has no jobs", path)
	}

	base := filepath.Dir(path)
	for i := range jobs {
		if jobs[i].Path == "" {
			return nil, fmt.Errorf("manifest job %d: path is required", i+1)
		}
		if jobs[i].ContractType == "" {
			return nil, fmt.Errorf("manifest job %d (%s): contractType is required", i+1, jobs[i].Path)
		}
		if !filepath.IsAbs(jobs[i].Path) {
			jobs[i].Path = filepath.Join(base, jobs[i].Path)
		}
	}
	return jobs, nil
}
