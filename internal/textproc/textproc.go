// Package textproc cleans raw transcription text: backend-scoped filter
// rules strip hallucinated substrings, then ordered replacement rules
// rewrite what remains.
package textproc

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"

	"murmur/internal/config"

	"github.com/sirupsen/logrus"
)

// defaultFilterPatterns covers the usual whisper hallucinations on
// silence and music: subtitle credits, channel plugs, bracketed cues.
var defaultFilterPatterns = []string{
	`^\.+$`,
	`subtitles by`, `subs by`, `transcription by`, `amara\.org`,
	`www\.zeoranger\.co\.uk`, `ESO`, `googleusercontent\.com`,
	`new thinking allowed foundation`, `touhou project`,
	`transcription outsourcing, llc`, `learn english for free`,
	`engvid\.com`, `Stille und Hintergrundgeräusche`,
	`^\s*bye-bye\.?\s*$`, `^\s*\[.*musik.*\]\s*$`, `^\s*\(.*applaus.*\)\s*$`,
}

// defaultFilterPatternsElevenLabs is much shorter; that backend rarely
// hallucinates beyond lone dots.
var defaultFilterPatternsElevenLabs = []string{
	`^\.+$`,
}

var defaultReplacements = []Replacement{
	{Pattern: `(?i)\bBotname\s*X\s*Y\b`, Replace: "BotnameXY"},
	{Pattern: `(?i)\bBot name\s*Ex\s*Why\b`, Replace: "BotnameXY"},
}

// Replacement is one rewrite rule. Rules apply in file order, each to
// the output of the previous one.
type Replacement struct {
	Pattern string `json:"pattern"`
	Replace string `json:"replacement"`

	re *regexp.Regexp
}

// Processor holds the compiled rule set. Safe for concurrent use;
// Reload swaps the rules atomically under the lock.
type Processor struct {
	logger *logrus.Logger

	filterPath   string
	filterPathEL string
	replPath     string
	filterParens bool

	mu           sync.RWMutex
	filters      []*regexp.Regexp
	filtersEL    []*regexp.Regexp
	replacements []Replacement
}

// New loads the rule files named in cfg, writing default files on first
// run. Invalid rule lines are skipped with a warning, never fatal.
func New(cfg *config.Config, logger *logrus.Logger) (*Processor, error) {
	p := &Processor{
		logger:       logger,
		filterPath:   cfg.Rules.FilterPath,
		filterPathEL: cfg.Rules.FilterPathElevenLabs,
		replPath:     cfg.Rules.ReplacementsPath,
		filterParens: cfg.Rules.FilterParentheses,
	}
	if err := p.Reload(); err != nil {
		return nil, err
	}
	return p, nil
}

// Reload re-reads all rule files. On error the previous rules stay active.
func (p *Processor) Reload() error {
	filters, err := loadFilterFile(p.filterPath, defaultFilterPatterns, p.logger)
	if err != nil {
		return err
	}
	filtersEL, err := loadFilterFile(p.filterPathEL, defaultFilterPatternsElevenLabs, p.logger)
	if err != nil {
		return err
	}
	repls, err := loadReplacementFile(p.replPath, p.logger)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.filters = filters
	p.filtersEL = filtersEL
	p.replacements = repls
	p.mu.Unlock()

	p.logger.WithFields(logrus.Fields{
		"filters":      len(filters),
		"filters_el":   len(filtersEL),
		"replacements": len(repls),
	}).Info("text rules loaded")
	return nil
}

// Process cleans one transcription for the named backend. Filters run
// first, then replacements in order, then a final trim. An empty return
// means the segment carried nothing worth emitting. Not idempotent: a
// replacement output can re-match a filter on a second pass.
func (p *Processor) Process(text, backend string) string {
	p.mu.RLock()
	filters := p.filters
	if backend == config.BackendElevenLabs {
		filters = p.filtersEL
	}
	repls := p.replacements
	parens := p.filterParens
	p.mu.RUnlock()

	out := text
	if parens {
		out = parenRe.ReplaceAllString(out, "")
		out = bracketRe.ReplaceAllString(out, "")
	}
	out = applyFilters(out, filters)
	for _, r := range repls {
		out = r.re.ReplaceAllString(out, r.Replace)
	}
	return strings.TrimSpace(out)
}

var (
	parenRe   = regexp.MustCompile(`\([^)]*\)`)
	bracketRe = regexp.MustCompile(`\[[^\]]*\]`)
	spaceRe   = regexp.MustCompile(`[ \t]{2,}`)
)

// applyFilters strips every filter match from each line and drops lines
// left empty. Matched substrings go, not the whole line, unless the
// pattern is anchored over it.
func applyFilters(text string, filters []*regexp.Regexp) string {
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		for _, f := range filters {
			line = f.ReplaceAllString(line, "")
		}
		// Stripping substrings leaves double spaces behind.
		line = strings.TrimSpace(spaceRe.ReplaceAllString(line, " "))
		if line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

// AddReplacement appends a rule at runtime and persists the file.
func (p *Processor) AddReplacement(pattern, replace string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("invalid replacement pattern %q: %w", pattern, err)
	}
	p.mu.Lock()
	p.replacements = append(p.replacements, Replacement{Pattern: pattern, Replace: replace, re: re})
	repls := make([]Replacement, len(p.replacements))
	copy(repls, p.replacements)
	p.mu.Unlock()
	return saveReplacements(p.replPath, repls)
}

// Replacements returns a copy of the active rewrite rules.
func (p *Processor) Replacements() []Replacement {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Replacement, len(p.replacements))
	copy(out, p.replacements)
	return out
}

func loadFilterFile(path string, defaults []string, logger *logrus.Logger) ([]*regexp.Regexp, error) {
	if path == "" {
		return nil, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		logger.Infof("filter file %s missing, writing defaults", path)
		if err := os.WriteFile(path, []byte(strings.Join(defaults, "\n")+"\n"), 0o644); err != nil {
			return nil, fmt.Errorf("write default filter file %s: %w", path, err)
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read filter file %s: %w", path, err)
	}
	var patterns []*regexp.Regexp
	for i, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		re, err := regexp.Compile("(?i)" + line)
		if err != nil {
			logger.Warnf("%s:%d: invalid filter pattern %q: %v", path, i+1, line, err)
			continue
		}
		patterns = append(patterns, re)
	}
	return patterns, nil
}

func loadReplacementFile(path string, logger *logrus.Logger) ([]Replacement, error) {
	if path == "" {
		return nil, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		logger.Infof("replacement file %s missing, writing defaults", path)
		if err := saveReplacements(path, defaultReplacements); err != nil {
			return nil, err
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read replacement file %s: %w", path, err)
	}
	var rules []Replacement
	if err := json.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("parse replacement file %s: %w", path, err)
	}
	out := rules[:0]
	for _, r := range rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			logger.Warnf("%s: invalid replacement pattern %q: %v", path, r.Pattern, err)
			continue
		}
		r.re = re
		out = append(out, r)
	}
	return out, nil
}

func saveReplacements(path string, rules []Replacement) error {
	data, err := json.MarshalIndent(rules, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write replacement file %s: %w", path, err)
	}
	return nil
}
