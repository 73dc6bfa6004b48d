package git

import (
	"context"
	"fmt"
	"strings"

	"github.com/helixml/diffsum/domain/change"
)

// PatchDiffProvider serves per-file sections of a unified diff, such as the
// output of "git diff --cached".
type PatchDiffProvider struct {
	paths   []string
	patches map[string]string
}

// ParsePatch splits text at each "diff --git" header. Anything before the
// first header, such as a format-patch mail header or "git show" commit
// metadata, is dropped. Text without headers becomes one unit named "patch".
func ParsePatch(text string) *PatchDiffProvider {
	p := &PatchDiffProvider{patches: make(map[string]string)}

	text = strings.ReplaceAll(text, "\r\n", "\n")
	if strings.TrimSpace(text) == "" {
		return p
	}

	if i := headerIndex(text); i > 0 {
		text = text[i:]
	}

	var current string
	var b strings.Builder
	flush := func() {
		if current == "" {
			return
		}
		section := strings.TrimRight(b.String(), "\n")
		if _, ok := p.patches[current]; ok {
			p.patches[current] += "\n" + section
		} else {
			p.paths = append(p.paths, current)
			p.patches[current] = section
		}
		b.Reset()
	}

	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(line, "diff --git ") {
			flush()
			current = headerPath(line)
		}
		if current == "" {
			current = "patch"
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	flush()

	return p
}

// headerIndex returns the offset of the first "diff --git" line, or -1.
func headerIndex(text string) int {
	if strings.HasPrefix(text, "diff --git ") {
		return 0
	}
	if i := strings.Index(text, "\ndiff --git "); i >= 0 {
		return i + 1
	}
	return -1
}

// headerPath extracts the new-side path of a "diff --git a/x b/y" line.
func headerPath(line string) string {
	rest := strings.TrimPrefix(line, "diff --git ")
	if i := strings.LastIndex(rest, " b/"); i >= 0 {
		return rest[i+3:]
	}
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return "patch"
	}
	return strings.TrimPrefix(fields[len(fields)-1], "b/")
}

// Diff implements change.DiffProvider.
func (p *PatchDiffProvider) Diff(_ context.Context, path string) (string, error) {
	patch, ok := p.patches[path]
	if !ok {
		return "", fmt.Errorf("%w: %s", change.ErrNotFound, path)
	}
	return patch, nil
}

// Paths returns the paths in the order they appear in the patch.
func (p *PatchDiffProvider) Paths() []string {
	paths := make([]string, len(p.paths))
	copy(paths, p.paths)
	return paths
}

var _ change.DiffProvider = (*PatchDiffProvider)(nil)
