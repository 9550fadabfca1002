package provider

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/microsoft/vcpkg-tool-sub005/portspec"
	"github.com/microsoft/vcpkg-tool-sub005/triplet"
)

// ToolchainCMakeVarProvider batch-evaluates triplet/feature platform
// expressions by invoking a configured toolchain command once per
// batch, parsing "KEY=VALUE" lines from its stdout (spec.md §4.1.3,
// §6). It is required to cache, which it does by retaining every
// variable map it has ever loaded for the lifetime of the provider.
type ToolchainCMakeVarProvider struct {
	// Command is invoked once per Load call as:
	//   Command[0] Command[1:]... <batch-args>
	// where <batch-args> is one "spec=portDir" argument per requested
	// entry (or, for the generic triplet load, a single "triplet=<t>"
	// argument). The adapter is agnostic to what the toolchain actually
	// does with these; it only parses stdout.
	Command []string

	mu   sync.Mutex
	vars map[string]map[string]string // key: spec.String() or "generic:"+triplet
}

// NewToolchainCMakeVarProvider returns a provider that shells out to
// command to evaluate variables.
func NewToolchainCMakeVarProvider(command []string) *ToolchainCMakeVarProvider {
	return &ToolchainCMakeVarProvider{
		Command: command,
		vars:    make(map[string]map[string]string),
	}
}

func (t *ToolchainCMakeVarProvider) runBatch(ctx context.Context, args []string) (map[string]map[string]string, error) {
	if len(t.Command) == 0 {
		return nil, errors.New("cmakevars: no toolchain command configured")
	}
	cmd := exec.CommandContext(ctx, t.Command[0], append(append([]string{}, t.Command[1:]...), args...)...)
	out, err := cmd.Output()
	if err != nil {
		return nil, errors.Wrap(err, "invoking toolchain probe")
	}
	return parseBatchOutput(out)
}

// parseBatchOutput parses toolchain stdout of the form:
//
//	=== <entry-key> ===
//	KEY=VALUE
//	KEY2=VALUE2
//
// one section per requested batch entry, into entry-key -> var map.
func parseBatchOutput(out []byte) (map[string]map[string]string, error) {
	result := make(map[string]map[string]string)
	scanner := bufio.NewScanner(strings.NewReader(string(out)))
	var current map[string]string
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "=== ") && strings.HasSuffix(line, " ===") {
			key := strings.TrimSuffix(strings.TrimPrefix(line, "=== "), " ===")
			current = make(map[string]string)
			result[key] = current
			continue
		}
		if current == nil || strings.TrimSpace(line) == "" {
			continue
		}
		idx := strings.IndexByte(line, '=')
		if idx < 0 {
			return nil, fmt.Errorf("cmakevars: malformed output line %q", line)
		}
		current[line[:idx]] = line[idx+1:]
	}
	return result, scanner.Err()
}

// LoadGenericTripletVars implements CMakeVarProvider.
func (t *ToolchainCMakeVarProvider) LoadGenericTripletVars(trip *triplet.Triplet) error {
	key := "generic:" + trip.String()
	batch, err := t.runBatch(context.Background(), []string{"triplet=" + trip.String()})
	if err != nil {
		return err
	}
	vars, ok := batch[key]
	if !ok {
		// Tolerate a toolchain that doesn't echo the section header for
		// a single-entry batch; treat the whole output as one section.
		for _, v := range batch {
			vars = v
			break
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.vars[key] = vars
	return nil
}

// LoadTagVars implements CMakeVarProvider.
func (t *ToolchainCMakeVarProvider) LoadTagVars(reqs []TagVarRequest) error {
	if len(reqs) == 0 {
		return nil
	}
	args := make([]string, 0, len(reqs))
	for _, r := range reqs {
		args = append(args, fmt.Sprintf("%s=%s", r.Spec.String(), r.PortDir))
	}
	batch, err := t.runBatch(context.Background(), args)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, r := range reqs {
		key := r.Spec.String()
		if vars, ok := batch[key]; ok {
			t.vars[key] = vars
		} else {
			t.vars[key] = map[string]string{}
		}
	}
	return nil
}

// GetTagVars implements CMakeVarProvider.
func (t *ToolchainCMakeVarProvider) GetTagVars(spec portspec.PackageSpec) (map[string]string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.vars[spec.String()]
	return v, ok
}
