package index

import (
	"encoding/binary"
	"encoding/json"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/cuemby/mikudb/pkg/document"
	"github.com/cuemby/mikudb/pkg/mdberr"
	"github.com/cuemby/mikudb/pkg/storage"
)

// posting is one token's inverted-index entry: parallel arrays over the
// documents containing the token (§4.5 "Full-text index").
type posting struct {
	DocIDs      []string `json:"doc_ids"`
	Positions   [][]int  `json:"positions"`
	Frequencies []int    `json:"frequencies"`
}

func (p *posting) indexOf(docHex string) int {
	for i, d := range p.DocIDs {
		if d == docHex {
			return i
		}
	}
	return -1
}

func loadPosting(part *storage.RawPartition, token string) (*posting, error) {
	b, found, err := part.Get([]byte(token))
	if err != nil {
		return nil, err
	}
	if !found {
		return &posting{}, nil
	}
	var p posting
	if err := json.Unmarshal(b, &p); err != nil {
		return nil, mdberr.Wrap(mdberr.KindInvalidDocument, err, "unmarshaling posting list for %q", token)
	}
	return &p, nil
}

func savePosting(part *storage.RawPartition, token string, p *posting) error {
	if len(p.DocIDs) == 0 {
		return part.Delete([]byte(token))
	}
	b, err := json.Marshal(p)
	if err != nil {
		return mdberr.Wrap(mdberr.KindInvalidDocument, err, "marshaling posting list for %q", token)
	}
	return part.Put([]byte(token), b)
}

func statsPartitionName(def *Definition) string {
	return def.partitionName() + "_stats"
}

func (e *Engine) fulltextParts(def *Definition) (postings, stats *storage.RawPartition, err error) {
	postings, err = e.partition(def)
	if err != nil {
		return nil, nil, err
	}
	stats, err = e.store.RawPartition(statsPartitionName(def))
	if err != nil {
		return nil, nil, err
	}
	return postings, stats, nil
}

// extractText concatenates every indexed field's string form, space
// separated, the text a full-text index tokenizes.
func extractText(def *Definition, doc *document.Document) string {
	var sb strings.Builder
	for i, fs := range def.Fields {
		v, ok := doc.GetPath(fs.Path)
		if !ok {
			continue
		}
		if i > 0 {
			sb.WriteByte(' ')
		}
		if s, ok := v.AsString(); ok {
			sb.WriteString(s)
		}
	}
	return sb.String()
}

func isCJK(r rune) bool {
	return unicode.Is(unicode.Han, r) ||
		unicode.Is(unicode.Hiragana, r) ||
		unicode.Is(unicode.Katakana, r) ||
		unicode.Is(unicode.Hangul, r)
}

// tokenize splits text per def's tokenizer (§4.5: Simple, ChineseNGram, Mixed).
func tokenize(t Tokenizer, text string) []string {
	switch t {
	case TokenizerChineseNGram:
		var out []string
		runes := []rune(text)
		for i := 0; i < len(runes); {
			if !isCJK(runes[i]) {
				i++
				continue
			}
			j := i
			for j < len(runes) && isCJK(runes[j]) {
				j++
			}
			out = tokenizeCJKRuns(runes[i:j], out)
			i = j
		}
		return out
	case TokenizerMixed:
		return tokenizeMixed(text)
	default:
		return tokenizeSimple(text)
	}
}

func tokenizeSimple(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// tokenizeCJKRuns emits a unigram for every CJK rune and a bigram for every
// adjacent pair within the same CJK run, appending into out.
func tokenizeCJKRuns(run []rune, out []string) []string {
	for i, r := range run {
		out = append(out, string(r))
		if i > 0 {
			out = append(out, string(run[i-1])+string(r))
		}
	}
	return out
}

// tokenizeMixed walks text once, emitting lowercased ASCII-ish words via
// the Simple rule and CJK uni/bigrams via the ChineseNGram rule, in the
// order each run is encountered (§4.5 "hybrid").
func tokenizeMixed(text string) []string {
	var tokens []string
	runes := []rune(text)
	i := 0
	for i < len(runes) {
		r := runes[i]
		switch {
		case isCJK(r):
			j := i
			for j < len(runes) && isCJK(runes[j]) {
				j++
			}
			tokens = tokenizeCJKRuns(runes[i:j], tokens)
			i = j
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			j := i
			for j < len(runes) && (unicode.IsLetter(runes[j]) || unicode.IsDigit(runes[j])) {
				j++
			}
			tokens = append(tokens, strings.ToLower(string(runes[i:j])))
			i = j
		default:
			i++
		}
	}
	return tokens
}

func (e *Engine) insertFullText(def *Definition, doc *document.Document, docID document.ObjectID) error {
	text := extractText(def, doc)
	tokens := tokenize(def.Tokenizer, text)
	if len(tokens) == 0 {
		return nil
	}
	postings, stats, err := e.fulltextParts(def)
	if err != nil {
		return err
	}

	positions := map[string][]int{}
	for i, tok := range tokens {
		positions[tok] = append(positions[tok], i)
	}
	docHex := docID.String()
	for tok, pos := range positions {
		p, err := loadPosting(postings, tok)
		if err != nil {
			return err
		}
		if idx := p.indexOf(docHex); idx >= 0 {
			p.Positions[idx] = pos
			p.Frequencies[idx] = len(pos)
		} else {
			p.DocIDs = append(p.DocIDs, docHex)
			p.Positions = append(p.Positions, pos)
			p.Frequencies = append(p.Frequencies, len(pos))
		}
		if err := savePosting(postings, tok, p); err != nil {
			return err
		}
	}

	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(tokens)))
	return stats.Put(docID[:], lenBuf[:])
}

func (e *Engine) deleteFullText(def *Definition, doc *document.Document, docID document.ObjectID) error {
	text := extractText(def, doc)
	tokens := tokenize(def.Tokenizer, text)
	postings, stats, err := e.fulltextParts(def)
	if err != nil {
		return err
	}
	docHex := docID.String()
	seen := map[string]bool{}
	for _, tok := range tokens {
		if seen[tok] {
			continue
		}
		seen[tok] = true
		p, err := loadPosting(postings, tok)
		if err != nil {
			return err
		}
		if idx := p.indexOf(docHex); idx >= 0 {
			p.DocIDs = append(p.DocIDs[:idx], p.DocIDs[idx+1:]...)
			p.Positions = append(p.Positions[:idx], p.Positions[idx+1:]...)
			p.Frequencies = append(p.Frequencies[:idx], p.Frequencies[idx+1:]...)
			if err := savePosting(postings, tok, p); err != nil {
				return err
			}
		}
	}
	return stats.Delete(docID[:])
}

// ScoredDoc is one search hit: the owning document's id and its TF-IDF
// relevance score.
type ScoredDoc struct {
	DocID document.ObjectID
	Score float64
}

func docLength(stats *storage.RawPartition, docID document.ObjectID) (int, bool) {
	b, found, err := stats.Get(docID[:])
	if err != nil || !found || len(b) != 8 {
		return 0, false
	}
	return int(binary.LittleEndian.Uint64(b)), true
}

func totalDocs(stats *storage.RawPartition) int {
	n := 0
	_ = stats.ForEach(func(key, value []byte) bool {
		n++
		return true
	})
	return n
}

// Search ranks every document containing at least one query term by
// TF-IDF: score(doc,query) = Σ_term (tf(term,doc)/doc_len) · ln(N/df + 1)
// (§4.5), highest score first.
func (e *Engine) Search(name, query string) ([]ScoredDoc, error) {
	def, ok := e.Get(name)
	if !ok {
		return nil, mdberr.New(mdberr.KindCollectionNotFound, "index %q not found", name)
	}
	if def.Type != TypeFullText {
		return nil, mdberr.New(mdberr.KindInvalidOperator, "search requires a full-text index, %q is %s", name, def.Type)
	}
	postings, stats, err := e.fulltextParts(def)
	if err != nil {
		return nil, err
	}
	n := totalDocs(stats)
	if n == 0 {
		return nil, nil
	}

	terms := map[string]bool{}
	for _, t := range tokenize(def.Tokenizer, query) {
		terms[t] = true
	}

	scores := map[document.ObjectID]float64{}
	for term := range terms {
		p, err := loadPosting(postings, term)
		if err != nil {
			return nil, err
		}
		if len(p.DocIDs) == 0 {
			continue
		}
		idf := math.Log(float64(n)/float64(len(p.DocIDs))+1)
		for i, docHex := range p.DocIDs {
			id, err := document.ObjectIDFromHex(docHex)
			if err != nil {
				continue
			}
			dl, ok := docLength(stats, id)
			if !ok || dl == 0 {
				continue
			}
			scores[id] += (float64(p.Frequencies[i]) / float64(dl)) * idf
		}
	}

	out := make([]ScoredDoc, 0, len(scores))
	for id, s := range scores {
		out = append(out, ScoredDoc{DocID: id, Score: s})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

// SearchPhrase finds documents where phrase's tokenized terms occur at
// consecutive positions (§4.5 "bigram position continuity across
// consecutive terms"), ranked by the same TF-IDF score as Search.
func (e *Engine) SearchPhrase(name, phrase string) ([]ScoredDoc, error) {
	def, ok := e.Get(name)
	if !ok {
		return nil, mdberr.New(mdberr.KindCollectionNotFound, "index %q not found", name)
	}
	if def.Type != TypeFullText {
		return nil, mdberr.New(mdberr.KindInvalidOperator, "search_phrase requires a full-text index, %q is %s", name, def.Type)
	}
	terms := tokenize(def.Tokenizer, phrase)
	if len(terms) == 0 {
		return nil, nil
	}
	postings, stats, err := e.fulltextParts(def)
	if err != nil {
		return nil, err
	}

	first, err := loadPosting(postings, terms[0])
	if err != nil {
		return nil, err
	}
	candidates := map[string][]int{} // docHex -> positions of terms[0] still viable
	for i, docHex := range first.DocIDs {
		candidates[docHex] = first.Positions[i]
	}

	for _, term := range terms[1:] {
		p, err := loadPosting(postings, term)
		if err != nil {
			return nil, err
		}
		posByDoc := map[string][]int{}
		for i, docHex := range p.DocIDs {
			posByDoc[docHex] = p.Positions[i]
		}
		next := map[string][]int{}
		for docHex, startPositions := range candidates {
			termPositions := posByDoc[docHex]
			if len(termPositions) == 0 {
				continue
			}
			termSet := map[int]bool{}
			for _, pos := range termPositions {
				termSet[pos] = true
			}
			var advanced []int
			for _, sp := range startPositions {
				if termSet[sp+1] {
					advanced = append(advanced, sp+1)
				}
			}
			if len(advanced) > 0 {
				next[docHex] = advanced
			}
		}
		candidates = next
		if len(candidates) == 0 {
			return nil, nil
		}
	}

	n := totalDocs(stats)
	out := make([]ScoredDoc, 0, len(candidates))
	for docHex := range candidates {
		id, err := document.ObjectIDFromHex(docHex)
		if err != nil {
			continue
		}
		var score float64
		if n > 0 {
			for _, term := range terms {
				p, err := loadPosting(postings, term)
				if err != nil {
					continue
				}
				idx := p.indexOf(docHex)
				if idx < 0 {
					continue
				}
				dl, ok := docLength(stats, id)
				if !ok || dl == 0 {
					continue
				}
				idf := math.Log(float64(n)/float64(len(p.DocIDs))+1)
				score += (float64(p.Frequencies[idx]) / float64(dl)) * idf
			}
		}
		out = append(out, ScoredDoc{DocID: id, Score: score})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}
