// Package fulltext provides an in-memory BM25 full-text index over memory
// content (spec.md §4.8).
//
// spec.md §1 explicitly treats "the BM25 library backend" as an external
// collaborator out of scope for the core; no BM25 library appears anywhere
// in the retrieval pack either, so this ships a workable default index
// rather than a production one, in the same standard-library texture as
// vectorindex.
package fulltext

import (
	"encoding/json"
	"math"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/mnemohq/mnemo/pkg/core"
)

const (
	k1 = 1.2
	b  = 0.75
)

// Scored is one ranked search hit.
type Scored struct {
	ID    core.ID
	Score float64
}

// Index is the full-text index contract (spec.md §4.8).
type Index interface {
	Add(id core.ID, text string) error
	Remove(id core.ID) error
	Search(query string, k int, allowed map[core.ID]struct{}) ([]Scored, error)
	Save(path string) error
	Load(path string) error
	Len() int
}

var tokenRE = regexp.MustCompile(`[A-Za-z0-9]+`)

func tokenize(text string) []string {
	return tokenRE.FindAllString(strings.ToLower(text), -1)
}

// BM25 is an in-memory inverted-index BM25 scorer with incremental
// add/remove.
type BM25 struct {
	mu        sync.RWMutex
	docs      map[core.ID][]string
	postings  map[string]map[core.ID]int // term -> id -> term frequency
	docLength map[core.ID]int
	totalLen  int
}

// New builds an empty index.
func New() *BM25 {
	return &BM25{
		docs:      make(map[core.ID][]string),
		postings:  make(map[string]map[core.ID]int),
		docLength: make(map[core.ID]int),
	}
}

// Add tokenizes text and inserts it into the index, replacing any prior
// entry for id.
func (idx *BM25) Add(id core.ID, text string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.removeLocked(id)

	terms := tokenize(text)
	idx.docs[id] = terms
	idx.docLength[id] = len(terms)
	idx.totalLen += len(terms)

	counts := make(map[string]int)
	for _, t := range terms {
		counts[t]++
	}
	for t, c := range counts {
		if idx.postings[t] == nil {
			idx.postings[t] = make(map[core.ID]int)
		}
		idx.postings[t][id] = c
	}
	return nil
}

// Remove deletes id from the index.
func (idx *BM25) Remove(id core.ID) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.removeLocked(id)
	return nil
}

func (idx *BM25) removeLocked(id core.ID) {
	terms, ok := idx.docs[id]
	if !ok {
		return
	}
	counts := make(map[string]struct{})
	for _, t := range terms {
		counts[t] = struct{}{}
	}
	for t := range counts {
		if p, ok := idx.postings[t]; ok {
			delete(p, id)
			if len(p) == 0 {
				delete(idx.postings, t)
			}
		}
	}
	idx.totalLen -= idx.docLength[id]
	delete(idx.docLength, id)
	delete(idx.docs, id)
}

// Search scores every document containing at least one query term with
// BM25 and restricts results to allowed when non-nil.
func (idx *BM25) Search(query string, k int, allowed map[core.ID]struct{}) ([]Scored, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	n := len(idx.docs)
	if n == 0 {
		return nil, nil
	}
	avgLen := float64(idx.totalLen) / float64(n)

	scores := make(map[core.ID]float64)
	for _, term := range tokenize(query) {
		postings, ok := idx.postings[term]
		if !ok {
			continue
		}
		idf := math.Log(1 + (float64(n)-float64(len(postings))+0.5)/(float64(len(postings))+0.5))
		for id, tf := range postings {
			if allowed != nil {
				if _, ok := allowed[id]; !ok {
					continue
				}
			}
			dl := float64(idx.docLength[id])
			denom := float64(tf) + k1*(1-b+b*dl/avgLen)
			scores[id] += idf * (float64(tf) * (k1 + 1) / denom)
		}
	}

	out := make([]Scored, 0, len(scores))
	for id, s := range scores {
		out = append(out, Scored{ID: id, Score: s})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out, nil
}

type persistedDoc struct {
	ID   string   `json:"id"`
	Text []string `json:"text"`
}

// Save persists the index's raw token lists to disk; postings are rebuilt
// on Load rather than serialized directly.
func (idx *BM25) Save(path string) error {
	idx.mu.RLock()
	docs := make([]persistedDoc, 0, len(idx.docs))
	for id, terms := range idx.docs {
		docs = append(docs, persistedDoc{ID: id.String(), Text: terms})
	}
	idx.mu.RUnlock()

	data, err := json.Marshal(docs)
	if err != nil {
		return core.NewEngineError("Save", core.KindIndex, err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return core.NewEngineError("Save", core.KindIndex, err)
	}
	return nil
}

// Load rebuilds the index from a file written by Save.
func (idx *BM25) Load(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return core.NewEngineError("Load", core.KindIndex, err)
	}

	var docs []persistedDoc
	if err := json.Unmarshal(data, &docs); err != nil {
		return core.NewEngineError("Load", core.KindIndex, err)
	}

	fresh := New()
	for _, d := range docs {
		id, err := core.ParseID(d.ID)
		if err != nil {
			continue
		}
		fresh.Add(id, strings.Join(d.Text, " "))
	}

	idx.mu.Lock()
	idx.docs = fresh.docs
	idx.postings = fresh.postings
	idx.docLength = fresh.docLength
	idx.totalLen = fresh.totalLen
	idx.mu.Unlock()
	return nil
}

// Len reports how many documents the index currently holds.
func (idx *BM25) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.docs)
}
