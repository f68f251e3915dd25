package safety

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/fsnotify/fsnotify"
	"github.com/keysplatform/moat/internal/logging"
	"github.com/keysplatform/moat/pkg/models"
	"gopkg.in/yaml.v3"
)

// ruleOverrideFile is the on-disk shape of operator-supplied security
// rules. They are appended to the built-in set, never replacing it.
type ruleOverrideFile struct {
	SecurityRules []ruleOverride `yaml:"security_rules"`
}

type ruleOverride struct {
	Pattern     string `yaml:"pattern"`
	Type        string `yaml:"type"`
	Severity    string `yaml:"severity"`
	Description string `yaml:"description"`
	Fix         string `yaml:"fix"`
}

var overrideTypes = map[string]models.VulnerabilityType{
	"sql_injection":   models.VulnSQLInjection,
	"xss":             models.VulnXSS,
	"auth_bypass":     models.VulnAuthBypass,
	"secret_exposure": models.VulnSecretExposure,
}

// RuleReloader keeps a scanner's override rules in sync with a YAML
// file on disk. The file's directory is watched rather than the file
// itself so editor save-via-rename still triggers a reload.
type RuleReloader struct {
	path    string
	scanner *Scanner
	logs    *logging.Manager
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewRuleReloader loads the override file once and starts watching it
// for changes. A missing file is not an error; the scanner simply runs
// with the built-in rules until the file appears.
func NewRuleReloader(path string, scanner *Scanner, logs *logging.Manager) (*RuleReloader, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create rule watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch rule directory: %w", err)
	}

	r := &RuleReloader{
		path:    path,
		scanner: scanner,
		logs:    logs,
		watcher: watcher,
		done:    make(chan struct{}),
	}

	r.reload()
	go r.watch()

	return r, nil
}

// Close stops the watcher.
func (r *RuleReloader) Close() error {
	close(r.done)
	return r.watcher.Close()
}

func (r *RuleReloader) watch() {
	for {
		select {
		case <-r.done:
			return
		case event, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(r.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				r.reload()
			}
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			if r.logs != nil {
				r.logs.Warn("safety", "rule watcher error", map[string]any{"error": err.Error()})
			}
		}
	}
}

func (r *RuleReloader) reload() {
	rules, err := loadOverrides(r.path)
	if err != nil {
		if r.logs != nil {
			r.logs.Warn("safety", "failed to load rule overrides, keeping previous set", map[string]any{
				"path": r.path, "error": err.Error(),
			})
		}
		return
	}

	r.scanner.setExtraRules(rules)
	if r.logs != nil {
		r.logs.Info("safety", "security rule overrides loaded", map[string]any{
			"path": r.path, "rules": len(rules),
		})
	}
}

func loadOverrides(path string) ([]securityRule, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read rule overrides: %w", err)
	}

	var file ruleOverrideFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse rule overrides: %w", err)
	}

	rules := make([]securityRule, 0, len(file.SecurityRules))
	for i, o := range file.SecurityRules {
		re, err := regexp.Compile(o.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rule %d: invalid pattern %q: %w", i, o.Pattern, err)
		}

		kind, ok := overrideTypes[o.Type]
		if !ok {
			return nil, fmt.Errorf("rule %d: unknown vulnerability type %q", i, o.Type)
		}

		severity := models.Severity(o.Severity)
		if models.SeverityRank(severity) == 0 {
			return nil, fmt.Errorf("rule %d: unknown severity %q", i, o.Severity)
		}

		description := o.Description
		rules = append(rules, securityRule{
			re:        re,
			kind:      kind,
			severity:  severity,
			describe:  func(string) string { return description },
			patternOf: func(m string) string { return echo(m) },
			fix:       o.Fix,
		})
	}

	return rules, nil
}
