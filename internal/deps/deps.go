package deps

import (
	"fmt"
	"os/exec"
	"strings"
)

// Resolver turns a configured command into the path that will be executed.
type Resolver func(command string) (string, error)

// Requirement names an external binary an engine needs at run time.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	// Resolve defaults to a PATH lookup.
	Resolve Resolver
}

// Status is the outcome of checking one Requirement.
type Status struct {
	Requirement
	Available bool
	// Detail is empty when Available, otherwise the reason it is not.
	Detail string
}

// CheckBinaries resolves each requirement. On success Status.Command holds
// the resolved path; on failure it keeps the configured command.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		req.Command = strings.TrimSpace(req.Command)
		req.Description = strings.TrimSpace(req.Description)
		status := Status{Requirement: req}
		if req.Command == "" {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		resolve := req.Resolve
		if resolve == nil {
			resolve = lookPath
		}
		resolved, err := resolve(req.Command)
		if err != nil {
			status.Detail = err.Error()
			results = append(results, status)
			continue
		}
		status.Command = resolved
		status.Available = true
		results = append(results, status)
	}
	return results
}

func lookPath(command string) (string, error) {
	resolved, err := exec.LookPath(command)
	if err != nil {
		return "", fmt.Errorf("binary %q not found", command)
	}
	return resolved, nil
}
