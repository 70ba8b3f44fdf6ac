package token

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func words(toks []Token) []string {
	var out []string
	for _, t := range toks {
		out = append(out, t.Text)
	}
	return out
}

func TestSplitSimpleWords(t *testing.T) {
	s := &Scanner{}

	cases := []string{
		"echo hello world",
		"ls",
		"a b c d e",
		"  spaced   out  ",
	}

	for _, tc := range cases {
		t.Run(tc, func(t *testing.T) {
			assert.Equal(t, strings.Fields(tc), words(s.Split(tc)))
		})
	}
}

func TestSplitQuotes(t *testing.T) {
	s := &Scanner{}

	cases := []struct {
		name  string
		line  string
		want  []string
		kinds []Kind
	}{
		{"double", `echo "hello world"`, []string{"echo", "hello world"}, []Kind{Word, Word}},
		{"single", `echo 'hello world'`, []string{"echo", "hello world"}, []Kind{Word, Word}},
		{"escape in double", `echo "a\"b"`, []string{"echo", `a"b`}, []Kind{Word, Word}},
		{"escape any char", `echo "a\xb"`, []string{"echo", "axb"}, []Kind{Word, Word}},
		{"escape unquoted", `echo a\ b`, []string{"echo", "a b"}, []Kind{Word, Word}},
		{"single is literal", `echo '\n'`, []string{"echo", `\n`}, []Kind{Word, Word}},
		{"quoted operator is a word", `echo "|"`, []string{"echo", "|"}, []Kind{Word, Word}},
		{"unterminated closes silently", `echo "abc`, []string{"echo", "abc"}, []Kind{Word, Word}},
		{"empty quotes", `echo ""`, []string{"echo", ""}, []Kind{Word, Word}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			toks := s.Split(tc.line)
			assert.Equal(t, tc.want, words(toks))
			for i, k := range tc.kinds {
				assert.Equal(t, k, toks[i].Kind)
			}
		})
	}
}

func TestSplitOperators(t *testing.T) {
	s := &Scanner{}

	cases := []struct {
		line string
		want []Kind
	}{
		{"a | b", []Kind{Word, Pipe, Word}},
		{"a < in > out", []Kind{Word, RedirIn, Word, RedirOut, Word}},
		{"a >> out", []Kind{Word, RedirAppend, Word}},
		{"sleep 5 &", []Kind{Word, Word, Background}},
		{"a|b", []Kind{Word}}, // operators inside a word stay literal
	}

	for _, tc := range cases {
		t.Run(tc.line, func(t *testing.T) {
			toks := s.Split(tc.line)
			var kinds []Kind
			for _, tok := range toks {
				kinds = append(kinds, tok.Kind)
			}
			assert.Equal(t, tc.want, kinds)
		})
	}
}

func TestExpandVariables(t *testing.T) {
	vars := map[string]string{
		"X":    "42",
		"HOME": "/home/neo",
		"_a1":  "ok",
	}
	s := &Scanner{Lookup: func(name string) (string, bool) {
		v, ok := vars[name]
		return v, ok
	}}

	cases := []struct {
		name string
		line string
		want []string
	}{
		{"bare", "echo $X", []string{"echo", "42"}},
		{"embedded", "echo a${nope}", []string{"echo", "a${nope}"}},
		{"prefix", "echo $HOME/src", []string{"echo", "/home/neo/src"}},
		{"underscore name", "echo $_a1", []string{"echo", "ok"}},
		{"unknown is empty", "echo $MISSING", []string{"echo", ""}},
		{"literal dollar", "echo 5$ $", []string{"echo", "5$", "$"}},
		{"digit after dollar", "echo $1", []string{"echo", "$1"}},
		{"double quoted expands", `echo "$X!"`, []string{"echo", "42!"}},
		{"single quoted does not", `echo '$X'`, []string{"echo", "$X"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, words(s.Split(tc.line)))
		})
	}
}

func TestSplitEmpty(t *testing.T) {
	s := &Scanner{}
	assert.Empty(t, s.Split(""))
	assert.Empty(t, s.Split("   \t "))
}

func TestSplitTokenCap(t *testing.T) {
	s := &Scanner{MaxTokens: 4}
	toks := s.Split("a b c d e f g")
	assert.Len(t, toks, 4)
	assert.Equal(t, []string{"a", "b", "c", "d"}, words(toks))
}
