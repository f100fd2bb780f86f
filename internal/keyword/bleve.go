package keyword

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
)

// Index is a memory-only bleve index keyed by conversation id.
type Index struct {
	index bleve.Index
}

// NewIndex creates an empty in-memory index.
func NewIndex() (*Index, error) {
	im := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()
	text := bleve.NewTextFieldMapping()
	// No stemming, so a query matches the word as typed.
	text.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("title", text)
	docMapping.AddFieldMappingsAt("preview", text)
	im.DefaultMapping = docMapping

	index, err := bleve.NewMemOnly(im)
	if err != nil {
		return nil, fmt.Errorf("create conversation index: %w", err)
	}
	return &Index{index: index}, nil
}

// Upsert indexes doc under id, replacing any previous version.
func (x *Index) Upsert(id string, doc Doc) error {
	return x.index.Index(id, doc)
}

// Delete removes id. Unknown ids are ignored.
func (x *Index) Delete(id string) error {
	return x.index.Delete(id)
}

// Count returns the number of indexed documents.
func (x *Index) Count() (uint64, error) {
	return x.index.DocCount()
}

// Close releases the index.
func (x *Index) Close() error {
	return x.index.Close()
}

// Search returns up to limit ids ordered by score.
func (x *Index) Search(query string, limit int, opts *SearchOptions) ([]Result, error) {
	terms := tokenizeQuery(query)
	if len(terms) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}
	var (
		fuzzy      bool
		fuzziness  = 1
		titleBoost = 1.0
	)
	if opts != nil {
		fuzzy = opts.Fuzzy
		if opts.Fuzziness > 0 {
			fuzziness = opts.Fuzziness
		}
		if opts.TitleBoost > 1 {
			titleBoost = opts.TitleBoost
		}
	}

	title := fieldQuery(query, terms, "title", fuzzy, fuzziness)
	title.(blevequery.BoostableQuery).SetBoost(titleBoost)
	preview := fieldQuery(query, terms, "preview", fuzzy, fuzziness)

	req := bleve.NewSearchRequest(bleve.NewDisjunctionQuery(title, preview))
	req.Size = limit
	res, err := x.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("conversation search: %w", err)
	}
	out := make([]Result, len(res.Hits))
	for i, hit := range res.Hits {
		out[i] = Result{ID: hit.ID, Score: hit.Score}
	}
	return out, nil
}

// fieldQuery matches query against field. In fuzzy mode every term becomes a
// fuzzy query and any of them may match.
func fieldQuery(query string, terms []string, field string, fuzzy bool, fuzziness int) blevequery.Query {
	if !fuzzy {
		mq := bleve.NewMatchQuery(query)
		mq.SetField(field)
		return mq
	}
	qs := make([]blevequery.Query, 0, len(terms))
	for _, term := range terms {
		fq := bleve.NewFuzzyQuery(term)
		fq.SetFuzziness(fuzziness)
		fq.SetField(field)
		qs = append(qs, fq)
	}
	return bleve.NewDisjunctionQuery(qs...)
}

// tokenizeQuery lower-cases query and splits it on anything that is not a letter or digit.
func tokenizeQuery(query string) []string {
	return strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
