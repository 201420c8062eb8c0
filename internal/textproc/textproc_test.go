package textproc

import (
	"os"
	"path/filepath"
	"testing"

	"murmur/internal/config"
	"murmur/internal/logging"
)

func testProcessor(t *testing.T, filters, filtersEL []string, repls string) *Processor {
	t.Helper()
	dir := t.TempDir()
	cfg, err := config.Default()
	if err != nil {
		t.Fatalf("default config: %v", err)
	}
	cfg.Rules.FilterPath = filepath.Join(dir, "filter_patterns.txt")
	cfg.Rules.FilterPathElevenLabs = filepath.Join(dir, "filter_patterns_el.txt")
	cfg.Rules.ReplacementsPath = filepath.Join(dir, "replacements.json")
	writeLines(t, cfg.Rules.FilterPath, filters)
	writeLines(t, cfg.Rules.FilterPathElevenLabs, filtersEL)
	if repls != "" {
		if err := os.WriteFile(cfg.Rules.ReplacementsPath, []byte(repls), 0o644); err != nil {
			t.Fatalf("write replacements: %v", err)
		}
	}
	p, err := New(cfg, logging.NewTestLogger())
	if err != nil {
		t.Fatalf("new processor: %v", err)
	}
	return p
}

func writeLines(t *testing.T, path string, lines []string) {
	t.Helper()
	data := ""
	for _, l := range lines {
		data += l + "\n"
	}
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestFiltersRunBeforeReplacements(t *testing.T) {
	p := testProcessor(t,
		[]string{`\[noise\]`},
		nil,
		`[{"pattern":"\\bteh\\b","replacement":"the"}]`)
	got := p.Process("[noise] teh cat", "openai")
	if got != "the cat" {
		t.Fatalf("got %q, want %q", got, "the cat")
	}
}

func TestFilterStripsSubstringNotLine(t *testing.T) {
	p := testProcessor(t, []string{`subtitles by \S+`}, nil, "")
	got := p.Process("hello there subtitles by amara", "openai")
	if got != "hello there" {
		t.Fatalf("got %q", got)
	}
}

func TestAnchoredFilterDropsWholeLine(t *testing.T) {
	p := testProcessor(t, []string{`^\.+$`}, nil, "")
	if got := p.Process("...", "openai"); got != "" {
		t.Fatalf("dot-only line survived as %q", got)
	}
	if got := p.Process("one...\nreal text", "openai"); got != "one...\nreal text" {
		t.Fatalf("inline dots mangled: %q", got)
	}
}

func TestFiltersAreCaseInsensitive(t *testing.T) {
	p := testProcessor(t, []string{`engvid\.com`}, nil, "")
	if got := p.Process("visit EngVid.COM now", "openai"); got != "visit now" {
		t.Fatalf("got %q", got)
	}
}

func TestFilterScopePerBackend(t *testing.T) {
	p := testProcessor(t,
		[]string{`whisper-only`},
		[]string{`eleven-only`},
		"")
	if got := p.Process("a whisper-only b", "openai"); got != "a b" {
		t.Fatalf("openai scope: %q", got)
	}
	if got := p.Process("a whisper-only b", "elevenlabs"); got != "a whisper-only b" {
		t.Fatalf("elevenlabs must not use the openai rules: %q", got)
	}
	if got := p.Process("a eleven-only b", "elevenlabs"); got != "a b" {
		t.Fatalf("elevenlabs scope: %q", got)
	}
}

func TestReplacementsApplyInOrder(t *testing.T) {
	// The second rule only matches the output of the first.
	p := testProcessor(t, nil, nil,
		`[{"pattern":"aa","replacement":"b"},{"pattern":"b","replacement":"c"}]`)
	if got := p.Process("aa", "openai"); got != "c" {
		t.Fatalf("got %q, want %q", got, "c")
	}
}

func TestParenthesesFilter(t *testing.T) {
	p := testProcessor(t, nil, nil, "")
	p.filterParens = true
	got := p.Process("hello (coughs) world [music]", "openai")
	if got != "hello world" {
		t.Fatalf("got %q", got)
	}
}

func TestEmptyResultMeansNoEmission(t *testing.T) {
	p := testProcessor(t, []string{`^\s*\[.*musik.*\]\s*$`}, nil, "")
	if got := p.Process("[Musik]", "openai"); got != "" {
		t.Fatalf("pure hallucination survived as %q", got)
	}
	if got := p.Process("   ", "openai"); got != "" {
		t.Fatalf("whitespace survived as %q", got)
	}
}

func TestDefaultFilesWrittenOnFirstRun(t *testing.T) {
	dir := t.TempDir()
	cfg, err := config.Default()
	if err != nil {
		t.Fatalf("default config: %v", err)
	}
	cfg.Rules.FilterPath = filepath.Join(dir, "filter_patterns.txt")
	cfg.Rules.FilterPathElevenLabs = filepath.Join(dir, "filter_patterns_el.txt")
	cfg.Rules.ReplacementsPath = filepath.Join(dir, "replacements.json")
	p, err := New(cfg, logging.NewTestLogger())
	if err != nil {
		t.Fatalf("new processor: %v", err)
	}
	for _, path := range []string{cfg.Rules.FilterPath, cfg.Rules.FilterPathElevenLabs, cfg.Rules.ReplacementsPath} {
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("default file not created: %v", err)
		}
	}
	// The stock hallucination rules should already bite.
	if got := p.Process("Subtitles by the Amara.org community", "openai"); got != "the community" {
		t.Fatalf("default rules missed: %q", got)
	}
	if got := p.Process("...", "elevenlabs"); got != "" {
		t.Fatalf("dot hallucination survived: %q", got)
	}
}

func TestInvalidRuleLinesAreSkipped(t *testing.T) {
	p := testProcessor(t,
		[]string{`[unclosed`, `# a comment`, ``, `valid`},
		nil,
		`[{"pattern":"(bad","replacement":"x"},{"pattern":"good","replacement":"fine"}]`)
	if got := p.Process("a valid good b", "openai"); got != "a fine b" {
		t.Fatalf("got %q", got)
	}
}

func TestAddReplacementPersists(t *testing.T) {
	p := testProcessor(t, nil, nil, `[]`)
	if err := p.AddReplacement(`(?i)\bdiktat\b`, "Diktat"); err != nil {
		t.Fatalf("add replacement: %v", err)
	}
	if got := p.Process("das diktat", "openai"); got != "das Diktat" {
		t.Fatalf("got %q", got)
	}
	if err := p.Reload(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got := p.Process("das diktat", "openai"); got != "das Diktat" {
		t.Fatalf("rule not persisted, got %q", got)
	}
}
