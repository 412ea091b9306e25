package internal

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	DefaultContextLength = 77
	DefaultBPECacheSize  = 10000
	StartOfText          = "<start_of_text>"
	EndOfText            = "<end_of_text>"

	endOfWord = "</w>"
	// CLIP's vocabulary is 49152 entries: 512 byte symbols, the merges, and
	// two special tokens.
	maxMerges = 49152 - 256 - 2
)

var preTokenPattern = regexp.MustCompile(`'s|'t|'re|'ve|'m|'ll|'d|\p{L}+|\p{N}+|[^\s\p{L}\p{N}]+`)

// TokenSequence is fixed-length model input for the text encoder.
type TokenSequence []int32

type bytePair struct {
	a, b string
}

// Tokenizer is a CLIP byte-pair-encoding tokenizer. It is safe for
// concurrent use.
type Tokenizer struct {
	contextLength int
	ranks         map[bytePair]int
	encoder       map[string]int32
	decoder       map[int32]string
	byteEncoder   [256]string
	byteDecoder   map[rune]byte
	sot           int32
	eot           int32

	cache *lru.Cache[string, []string]
}

type TokenizerOption func(*tokenizerConfig)

type tokenizerConfig struct {
	contextLength int
	cacheSize     int
}

func WithContextLength(n int) TokenizerOption {
	return func(c *tokenizerConfig) {
		c.contextLength = n
	}
}

// WithCacheSize bounds the number of words whose merges are memoized.
func WithCacheSize(n int) TokenizerOption {
	return func(c *tokenizerConfig) {
		c.cacheSize = n
	}
}

// NewTokenizer loads the merge table at path. Files ending in .gz are
// decompressed transparently.
func NewTokenizer(path string, opts ...TokenizerOption) (*Tokenizer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open vocabulary: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrVocabulary, err)
		}
		defer gz.Close()
		r = gz
	}

	return NewTokenizerFromReader(r, opts...)
}

// NewTokenizerFromReader builds a tokenizer from an open_clip style merges
// file: a header line followed by one "a b" merge per line.
func NewTokenizerFromReader(r io.Reader, opts ...TokenizerOption) (*Tokenizer, error) {
	cfg := tokenizerConfig{contextLength: DefaultContextLength, cacheSize: DefaultBPECacheSize}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.contextLength < 2 {
		return nil, fmt.Errorf("context length %d too small", cfg.contextLength)
	}

	cache, err := lru.New[string, []string](cfg.cacheSize)
	if err != nil {
		return nil, fmt.Errorf("bpe cache: %w", err)
	}

	merges, err := readMerges(r)
	if err != nil {
		return nil, err
	}

	t := &Tokenizer{
		contextLength: cfg.contextLength,
		ranks:         make(map[bytePair]int, len(merges)),
		byteDecoder:   make(map[rune]byte, 256),
		cache:         cache,
	}

	order := byteOrder()
	for _, b := range order {
		sym := byteSymbol(b, order)
		t.byteEncoder[b] = sym
		r, _ := utf8.DecodeRuneInString(sym)
		t.byteDecoder[r] = b
	}

	vocab := make([]string, 0, 2*len(order)+len(merges)+2)
	for _, b := range order {
		vocab = append(vocab, t.byteEncoder[b])
	}
	for _, b := range order {
		vocab = append(vocab, t.byteEncoder[b]+endOfWord)
	}
	for i, m := range merges {
		t.ranks[m] = i
		vocab = append(vocab, m.a+m.b)
	}
	vocab = append(vocab, StartOfText, EndOfText)

	t.encoder = make(map[string]int32, len(vocab))
	t.decoder = make(map[int32]string, len(vocab))
	for i, tok := range vocab {
		t.encoder[tok] = int32(i)
		t.decoder[int32(i)] = tok
	}
	t.sot = t.encoder[StartOfText]
	t.eot = t.encoder[EndOfText]

	return t, nil
}

func readMerges(r io.Reader) ([]bytePair, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrVocabulary, err)
		}
		return nil, fmt.Errorf("%w: empty merges file", ErrVocabulary)
	}

	var merges []bytePair
	line := 1
	for scanner.Scan() && len(merges) < maxMerges {
		line++
		text := strings.TrimRight(scanner.Text(), "\r")
		if text == "" {
			continue
		}
		a, b, ok := strings.Cut(text, " ")
		if !ok || a == "" || b == "" || strings.Contains(b, " ") {
			return nil, fmt.Errorf("%w: malformed merge on line %d", ErrVocabulary, line)
		}
		merges = append(merges, bytePair{a: a, b: b})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVocabulary, err)
	}

	return merges, nil
}

// byteOrder lists every byte value: printable Latin-1 first, the rest after.
func byteOrder() []byte {
	order := make([]byte, 0, 256)
	printable := [256]bool{}
	for _, span := range [][2]int{{'!', '~'}, {0xA1, 0xAC}, {0xAE, 0xFF}} {
		for b := span[0]; b <= span[1]; b++ {
			order = append(order, byte(b))
			printable[b] = true
		}
	}
	for b := 0; b < 256; b++ {
		if !printable[b] {
			order = append(order, byte(b))
		}
	}
	return order
}

// byteSymbol maps a byte to its printable stand-in. Printable bytes map to
// themselves; the remaining 68 take code points from 256 upward.
func byteSymbol(b byte, order []byte) string {
	n := 0
	for _, o := range order[188:] {
		if o == b {
			return string(rune(256 + n))
		}
		n++
	}
	return string(rune(b))
}

func (t *Tokenizer) ContextLength() int {
	return t.contextLength
}

func (t *Tokenizer) VocabSize() int {
	return len(t.encoder)
}

func (t *Tokenizer) StartToken() int32 {
	return t.sot
}

func (t *Tokenizer) EndToken() int32 {
	return t.eot
}

// Tokenize converts each text into a context-length token sequence wrapped
// in start/end markers and zero padded.
func (t *Tokenizer) Tokenize(texts []string) []TokenSequence {
	out := make([]TokenSequence, len(texts))
	for i, text := range texts {
		out[i] = t.sequence(t.Encode(text))
	}
	return out
}

func (t *Tokenizer) sequence(ids []int32) TokenSequence {
	seq := make(TokenSequence, t.contextLength)
	seq[0] = t.sot
	n := copy(seq[1:t.contextLength-1], ids)
	seq[1+n] = t.eot
	return seq
}

// Encode returns the BPE ids of text without markers or padding.
func (t *Tokenizer) Encode(text string) []int32 {
	var ids []int32
	for _, pre := range preTokenPattern.FindAllString(normalizeText(text), -1) {
		for _, sym := range t.bpe(t.byteEncode(pre)) {
			if id, ok := t.encoder[sym]; ok {
				ids = append(ids, id)
			}
		}
	}
	return ids
}

// Decode maps ids back to text, stopping at the end marker.
func (t *Tokenizer) Decode(seq []int32) string {
	var sb strings.Builder
	for _, id := range seq {
		if id == t.eot {
			break
		}
		if id == t.sot {
			continue
		}
		if tok, ok := t.decoder[id]; ok {
			sb.WriteString(tok)
		}
	}

	var raw []byte
	for _, r := range sb.String() {
		if b, ok := t.byteDecoder[r]; ok {
			raw = append(raw, b)
		}
	}
	return strings.TrimSpace(strings.ReplaceAll(string(raw), endOfWord, " "))
}

func normalizeText(text string) string {
	return strings.ToLower(strings.Join(strings.Fields(text), " "))
}

func (t *Tokenizer) byteEncode(token string) string {
	var sb strings.Builder
	for i := 0; i < len(token); i++ {
		sb.WriteString(t.byteEncoder[token[i]])
	}
	return sb.String()
}

func (t *Tokenizer) bpe(token string) []string {
	if cached, ok := t.cache.Get(token); ok {
		return cached
	}

	word := make([]string, 0, len(token))
	for _, r := range token {
		word = append(word, string(r))
	}
	word[len(word)-1] += endOfWord

	for len(word) > 1 {
		best, bestRank := bytePair{}, -1
		for i := 0; i < len(word)-1; i++ {
			p := bytePair{a: word[i], b: word[i+1]}
			if rank, ok := t.ranks[p]; ok && (bestRank < 0 || rank < bestRank) {
				best, bestRank = p, rank
			}
		}
		if bestRank < 0 {
			break
		}
		word = mergePair(word, best)
	}

	t.cache.Add(token, word)
	return word
}

func mergePair(word []string, p bytePair) []string {
	merged := make([]string, 0, len(word))
	for i := 0; i < len(word); i++ {
		if i < len(word)-1 && word[i] == p.a && word[i+1] == p.b {
			merged = append(merged, p.a+p.b)
			i++
			continue
		}
		merged = append(merged, word[i])
	}
	return merged
}
