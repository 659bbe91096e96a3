package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/warden/pkg/serviceaccount"
)

// policyFile is the YAML form of serviceaccount.Policy
type policyFile struct {
	DefaultExpiration Duration `yaml:"defaultExpiration"`
	MaxExpiration     Duration `yaml:"maxExpiration"`
	AllowNoExpiration bool     `yaml:"allowNoExpiration"`
}

// Duration unmarshals from "90d" or any time.ParseDuration string
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

// ParseDuration parses a whole number of days ("90d") or a Go duration
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return d, nil
}

// ValidatePolicy checks that a policy's bounds are consistent
func ValidatePolicy(p serviceaccount.Policy) error {
	if p.MaxExpiration <= 0 {
		return fmt.Errorf("max expiration must be positive")
	}
	if p.DefaultExpiration <= 0 {
		return fmt.Errorf("default expiration must be positive")
	}
	if p.DefaultExpiration > p.MaxExpiration {
		return fmt.Errorf("default expiration %s exceeds max expiration %s", p.DefaultExpiration, p.MaxExpiration)
	}
	return nil
}

// LoadPolicyFile reads and validates a YAML policy file. Fields missing from
// the file keep the values in base.
func LoadPolicyFile(path string, base serviceaccount.Policy) (serviceaccount.Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return serviceaccount.Policy{}, fmt.Errorf("failed to read policy file: %w", err)
	}

	pf := policyFile{
		DefaultExpiration: Duration(base.DefaultExpiration),
		MaxExpiration:     Duration(base.MaxExpiration),
		AllowNoExpiration: base.AllowNoExpiration,
	}
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return serviceaccount.Policy{}, fmt.Errorf("failed to parse policy file %s: %w", path, err)
	}

	policy := serviceaccount.Policy{
		DefaultExpiration: time.Duration(pf.DefaultExpiration),
		MaxExpiration:     time.Duration(pf.MaxExpiration),
		AllowNoExpiration: pf.AllowNoExpiration,
	}
	if err := ValidatePolicy(policy); err != nil {
		return serviceaccount.Policy{}, fmt.Errorf("policy file %s: %w", path, err)
	}
	return policy, nil
}

// PolicyWatcher serves the current expiration policy, reloading it when the
// policy file changes. Readers take a snapshot with Current.
type PolicyWatcher struct {
	path    string
	base    serviceaccount.Policy
	current atomic.Pointer[serviceaccount.Policy]
	watcher *fsnotify.Watcher
	logger  *logrus.Logger
}

// NewPolicyWatcher loads path once and starts watching its directory.
// The directory is watched rather than the file so that atomic
// rename-into-place writes are seen.
func NewPolicyWatcher(path string, base serviceaccount.Policy, logger *logrus.Logger) (*PolicyWatcher, error) {
	if logger == nil {
		logger = logrus.New()
	}

	policy, err := LoadPolicyFile(path, base)
	if err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}

	pw := &PolicyWatcher{
		path:    filepath.Clean(path),
		base:    base,
		watcher: watcher,
		logger:  logger,
	}
	pw.current.Store(&policy)
	return pw, nil
}

// Current returns the policy in effect
func (pw *PolicyWatcher) Current() serviceaccount.Policy {
	return *pw.current.Load()
}

// Run processes file events until ctx is done or the watcher is closed
func (pw *PolicyWatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-pw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != pw.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			pw.reload()
		case err, ok := <-pw.watcher.Errors:
			if !ok {
				return
			}
			pw.logger.WithError(err).Warn("policy watcher error")
		}
	}
}

func (pw *PolicyWatcher) reload() {
	policy, err := LoadPolicyFile(pw.path, pw.base)
	if err != nil {
		pw.logger.WithError(err).Warn("keeping previous expiration policy")
		return
	}
	pw.current.Store(&policy)
	pw.logger.WithFields(logrus.Fields{
		"default_expiration":  policy.DefaultExpiration.String(),
		"max_expiration":      policy.MaxExpiration.String(),
		"allow_no_expiration": policy.AllowNoExpiration,
	}).Info("expiration policy reloaded")
}

// Close stops watching
func (pw *PolicyWatcher) Close() error {
	return pw.watcher.Close()
}
