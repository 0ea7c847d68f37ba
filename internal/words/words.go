// Package words generates three-character domain candidates from an
// English lexicon. Four-letter words containing exactly one vowel keep a
// pronounceable consonant skeleton once the vowel is dropped, which makes
// them good short-domain material.
package words

import (
	"bufio"
	"context"
	"os"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/domain-scout/internal/model"
)

const vowels = "aeiou"

// Candidate pairs a source word with its vowel-stripped form.
type Candidate struct {
	Original string
	Short    string
}

// Lexicon supplies the source word list.
type Lexicon interface {
	Words(ctx context.Context) ([]string, error)
}

// FileLexicon reads one word per line from a plain text file.
type FileLexicon struct {
	Path string
}

func (f FileLexicon) Words(_ context.Context) ([]string, error) {
	file, err := os.Open(f.Path)
	if err != nil {
		return nil, eris.Wrapf(err, "words: open lexicon %s", f.Path)
	}
	defer file.Close()

	var out []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if w := strings.TrimSpace(scanner.Text()); w != "" {
			out = append(out, w)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, eris.Wrapf(err, "words: read lexicon %s", f.Path)
	}
	return out, nil
}

// SliceLexicon wraps an in-memory word list.
type SliceLexicon []string

func (s SliceLexicon) Words(_ context.Context) ([]string, error) {
	return s, nil
}

// Candidates filters the lexicon to four-letter single-vowel words and
// strips the vowel. Output is deduplicated on the short form and sorted.
func Candidates(ctx context.Context, lex Lexicon) ([]Candidate, error) {
	list, err := lex.Words(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var out []Candidate
	for _, w := range list {
		w = strings.ToLower(strings.TrimSpace(w))
		if len(w) != 4 || !alphabetic(w) || vowelCount(w) != 1 {
			continue
		}
		short := stripVowels(w)
		if seen[short] {
			continue
		}
		seen[short] = true
		out = append(out, Candidate{Original: w, Short: short})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Short < out[j].Short })
	return out, nil
}

// Domains crosses candidate short forms with the given TLDs, producing
// normalized domain names.
func Domains(candidates []Candidate, tlds []string) []string {
	out := make([]string, 0, len(candidates)*len(tlds))
	for _, c := range candidates {
		for _, tld := range tlds {
			out = append(out, model.Normalize(c.Short+"."+tld))
		}
	}
	return out
}

func alphabetic(s string) bool {
	for _, r := range s {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return true
}

func vowelCount(s string) int {
	n := 0
	for _, r := range s {
		if strings.ContainsRune(vowels, r) {
			n++
		}
	}
	return n
}

func stripVowels(s string) string {
	var b strings.Builder
	for _, r := range s {
		if !strings.ContainsRune(vowels, r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
