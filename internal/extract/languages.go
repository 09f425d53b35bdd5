package extract

import (
	"path/filepath"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
)

// extToLanguage maps file extensions to canonical language names.
var extToLanguage = map[string]string{
	".go": "go",
}

var (
	langToGrammar map[string]*sitter.Language
	grammarsOnce  sync.Once
)

func initGrammars() {
	grammarsOnce.Do(func() {
		langToGrammar = map[string]*sitter.Language{
			"go": golang.GetLanguage(),
		}
	})
}

// LanguageForFile returns the canonical language name for a file path based
// on its extension. Test files are not part of the program and report false.
func LanguageForFile(path string) (string, bool) {
	if strings.HasSuffix(path, "_test.go") {
		return "", false
	}
	lang, ok := extToLanguage[strings.ToLower(filepath.Ext(path))]
	return lang, ok
}

// GrammarForLanguage returns the tree-sitter Language for a canonical
// language name.
func GrammarForLanguage(lang string) (*sitter.Language, bool) {
	initGrammars()
	l, ok := langToGrammar[lang]
	return l, ok
}
