package internal

import (
	"compress/gzip"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testMerges builds "hello</w>" in four merges; ids start at 512.
const testMerges = "#version: 0.2\nh e\nl l\nll o</w>\nhe llo</w>\n"

const (
	idHello = 515
	idSOT   = 516
	idEOT   = 517
)

func newTestTokenizer(t *testing.T, opts ...TokenizerOption) *Tokenizer {
	t.Helper()
	tok, err := NewTokenizerFromReader(strings.NewReader(testMerges), opts...)
	require.NoError(t, err)
	return tok
}

func byteID(b byte) int32 {
	for i, o := range byteOrder() {
		if o == b {
			return int32(i)
		}
	}
	return -1
}

func TestTokenizerSpecialTokens(t *testing.T) {
	tok := newTestTokenizer(t)

	assert.Equal(t, int32(idSOT), tok.StartToken())
	assert.Equal(t, int32(idEOT), tok.EndToken())
	assert.Equal(t, 518, tok.VocabSize())
	assert.Equal(t, DefaultContextLength, tok.ContextLength())
}

func TestTokenizeEmpty(t *testing.T) {
	tok := newTestTokenizer(t)

	seqs := tok.Tokenize([]string{""})
	require.Len(t, seqs, 1)
	require.Len(t, seqs[0], 77)

	want := make(TokenSequence, 77)
	want[0] = idSOT
	want[1] = idEOT
	assert.Equal(t, want, seqs[0])
}

func TestTokenizeMergesWord(t *testing.T) {
	tok := newTestTokenizer(t)

	seq := tok.Tokenize([]string{"hello"})[0]
	assert.Equal(t, TokenSequence{idSOT, idHello, idEOT}, seq[:3])
	for _, id := range seq[3:] {
		assert.Zero(t, id)
	}
}

func TestTokenizeNormalizesWhitespaceAndCase(t *testing.T) {
	tok := newTestTokenizer(t)

	a := tok.Tokenize([]string{"  Hello \t\n  WORLD  "})[0]
	b := tok.Tokenize([]string{"hello world"})[0]
	assert.Equal(t, b, a)

	want := []int32{
		idSOT,
		idHello,
		byteID('w'), byteID('o'), byteID('r'), byteID('l'),
		256 + byteID('d'),
		idEOT,
	}
	assert.Equal(t, want, []int32(a[:len(want)]))
}

func TestTokenizeContractions(t *testing.T) {
	tok := newTestTokenizer(t)

	ids := tok.Encode("it's")
	want := []int32{byteID('i'), 256 + byteID('t'), byteID('\''), 256 + byteID('s')}
	assert.Equal(t, want, ids)
}

func TestTokenizeSequenceInvariants(t *testing.T) {
	tok := newTestTokenizer(t)

	texts := []string{"a", "hello there", "photo of 3 cats!", "ünïcödé text", "it's a dog's life"}
	for _, seq := range tok.Tokenize(texts) {
		require.Len(t, seq, 77)
		assert.Equal(t, int32(idSOT), seq[0])

		end := -1
		for i, id := range seq {
			if id == idEOT {
				end = i
				break
			}
		}
		require.Greater(t, end, 0, "missing end marker")

		for i := 1; i < end; i++ {
			assert.NotEqual(t, int32(idSOT), seq[i])
			assert.NotZero(t, seq[i], "zero before end marker at %d", i)
		}
		for i := end + 1; i < len(seq); i++ {
			assert.Zero(t, seq[i])
		}
	}
}

func TestTokenizeTruncates(t *testing.T) {
	tok := newTestTokenizer(t)

	long := strings.Repeat("a ", 100)
	seq := tok.Tokenize([]string{long})[0]

	require.Len(t, seq, 77)
	assert.Equal(t, int32(idSOT), seq[0])
	assert.Equal(t, int32(idEOT), seq[76])
	for _, id := range seq[1:76] {
		assert.Equal(t, 256+byteID('a'), id)
	}
}

func TestTokenizeCustomContextLength(t *testing.T) {
	tok := newTestTokenizer(t, WithContextLength(4))

	seq := tok.Tokenize([]string{"hello hello hello"})[0]
	assert.Equal(t, TokenSequence{idSOT, idHello, idHello, idEOT}, seq)
}

func TestTokenizeDeterministic(t *testing.T) {
	tok := newTestTokenizer(t)
	fresh := newTestTokenizer(t)

	first := tok.Tokenize([]string{"hello hello world"})
	second := tok.Tokenize([]string{"hello hello world"})
	assert.Equal(t, first, second)
	assert.Equal(t, fresh.Tokenize([]string{"hello hello world"}), second)
}

func TestTokenizeConcurrent(t *testing.T) {
	tok := newTestTokenizer(t)
	want := newTestTokenizer(t).Tokenize([]string{"hello world 42"})[0]

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Equal(t, want, tok.Tokenize([]string{"hello world 42"})[0])
		}()
	}
	wg.Wait()
}

func TestTokenizeCacheBounded(t *testing.T) {
	tok := newTestTokenizer(t, WithCacheSize(2), WithContextLength(128))
	unbounded := newTestTokenizer(t, WithContextLength(128))

	words := make([]string, 0, 50)
	for i := 0; i < 50; i++ {
		words = append(words, fmt.Sprintf("word%c%c", 'a'+i%26, 'a'+i/26))
	}
	text := strings.Join(words, " ") + " hello"

	for range 3 {
		assert.Equal(t, unbounded.Tokenize([]string{text}), tok.Tokenize([]string{text}))
		assert.LessOrEqual(t, tok.cache.Len(), 2)
	}

	_, err := NewTokenizerFromReader(strings.NewReader(testMerges), WithCacheSize(0))
	assert.Error(t, err)
}

func TestTokenizerDecode(t *testing.T) {
	tok := newTestTokenizer(t)

	seq := tok.Tokenize([]string{"Hello World"})[0]
	assert.Equal(t, "hello world", tok.Decode(seq))
}

func TestByteSymbols(t *testing.T) {
	order := byteOrder()
	require.Len(t, order, 256)

	seen := make(map[string]bool)
	for _, b := range order {
		sym := byteSymbol(b, order)
		assert.False(t, seen[sym], "duplicate symbol for byte %d", b)
		seen[sym] = true
	}

	assert.Equal(t, "a", byteSymbol('a', order))
	assert.Equal(t, string(rune(256)), byteSymbol(0, order))
	assert.Equal(t, "Ġ", byteSymbol(' ', order))
}

func TestTokenizerVocabularyErrors(t *testing.T) {
	_, err := NewTokenizerFromReader(strings.NewReader(""))
	assert.ErrorIs(t, err, ErrVocabulary)

	_, err = NewTokenizerFromReader(strings.NewReader("#version\nbroken-line\n"))
	assert.ErrorIs(t, err, ErrVocabulary)

	_, err = NewTokenizer(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestNewTokenizerGzip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vocab.txt.gz")
	f, err := os.Create(path)
	require.NoError(t, err)
	gz := gzip.NewWriter(f)
	_, err = gz.Write([]byte(testMerges))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())

	tok, err := NewTokenizer(path)
	require.NoError(t, err)
	assert.Equal(t, int32(idHello), tok.Tokenize([]string{"hello"})[0][1])
}
