package main

import (
	"context"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/bazelment/yoloswe/agentwire/permission"
)

// policyFile is the on-disk shape of a permission policy, loaded with
// yaml.v3 exactly the way wt's RepoConfig loads .wt.yaml — the transport
// itself owns no file format, so this lives entirely in the example
// program.
type policyFile struct {
	Default string   `yaml:"default"`
	Allow   []string `yaml:"allow"`
	Deny    []string `yaml:"deny"`
}

// loadPolicyFile reads and validates a policy file. An absent file is not
// an error: it resolves to an all-allow policy, matching the transport's
// own zero-Policy default.
func loadPolicyFile(path string) (*policyFile, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &policyFile{Default: "allow"}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}

	var pf policyFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parse policy file %s: %w", path, err)
	}
	if pf.Default == "" {
		pf.Default = "allow"
	}
	if pf.Default != "allow" && pf.Default != "deny" {
		return nil, fmt.Errorf("policy file %s: default must be \"allow\" or \"deny\", got %q", path, pf.Default)
	}
	return &pf, nil
}

// toPolicy converts the file into a permission.Policy. allow/deny lists are
// mutually exclusive with the opposite default: an allow-list only makes
// sense against a deny-by-default posture and vice versa, so whichever
// list is non-empty wins over Default.
func (pf *policyFile) toPolicy() permission.Policy {
	if len(pf.Allow) > 0 {
		set := make(map[string]struct{}, len(pf.Allow))
		for _, name := range pf.Allow {
			set[name] = struct{}{}
		}
		return permission.AllowList(set)
	}
	if len(pf.Deny) > 0 {
		set := make(map[string]struct{}, len(pf.Deny))
		for _, name := range pf.Deny {
			set[name] = struct{}{}
		}
		return permission.DenyList(set)
	}
	if pf.Default == "deny" {
		// An empty allow-list denies every tool.
		return permission.AllowList(nil)
	}
	return permission.AllowAll()
}

// reloadablePolicy holds a Policy that can be swapped out from under a
// running transport: the transport reads it through a closure captured at
// construction time, so a fsnotify-driven reload never needs to touch the
// transport itself.
type reloadablePolicy struct {
	mu     sync.RWMutex
	policy permission.Policy
}

func newReloadablePolicy(initial permission.Policy) *reloadablePolicy {
	return &reloadablePolicy{policy: initial}
}

func (r *reloadablePolicy) set(p permission.Policy) {
	r.mu.Lock()
	r.policy = p
	r.mu.Unlock()
}

// asPolicy returns a permission.Policy that always delegates to whatever
// was most recently installed with set.
func (r *reloadablePolicy) asPolicy() permission.Policy {
	return func(ctx context.Context, toolName string, input map[string]interface{}, pctx permission.Context) (permission.Result, error) {
		r.mu.RLock()
		p := r.policy
		r.mu.RUnlock()
		if p == nil {
			return permission.Allow(nil), nil
		}
		return p(ctx, toolName, input, pctx)
	}
}
