package pipeline

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/researchdesk/backend/internal/models"
)

// citationRe matches one bracketed citation marker: a single id, a
// comma-separated list, or a hyphenated inclusive range (and combinations,
// e.g. [1, 3-5]).
var citationRe = regexp.MustCompile(`\[(\d+(?:\s*[-,]\s*\d+)*)\]`)

// maxRangeSpan bounds how far a [n-m] range may expand; anything wider is
// treated as invalid rather than flooding the index.
const maxRangeSpan = 50

// CitationIndex maps a citation id to the source it references. It is
// derived from the text it was built against and never mutated on its own.
type CitationIndex map[string]models.Source

// CitationMetadata reports how the text used its sources. TotalCitations
// counts every expanded range/list member; DistinctSources counts unique
// cited ids. Both are exposed because they answer different questions.
type CitationMetadata struct {
	TotalCitations     int
	DistinctSources    int
	SourceUsagePercent int
}

// ResolveLenient builds the citation index for freshly generated text.
// Unknown ids are tolerated: they stay out of the index (and therefore
// render as literal text) and do not count toward usage metrics.
func ResolveLenient(text string, sources []models.Source) (CitationIndex, CitationMetadata) {
	index, meta, _ := resolve(text, sources, false)
	return index, meta
}

// ResolveStrict builds the citation index for user-driven revisions, where
// introducing an unseen citation is a correctness violation. Any unknown id
// fails the whole resolution with *InvalidCitationError.
func ResolveStrict(text string, sources []models.Source) (CitationIndex, CitationMetadata, error) {
	return resolve(text, sources, true)
}

func resolve(text string, sources []models.Source, strict bool) (CitationIndex, CitationMetadata, error) {
	known := make(map[string]models.Source, len(sources))
	for _, s := range sources {
		known[s.ID] = s
	}

	index := CitationIndex{}
	distinct := map[string]bool{}
	var total int
	var invalid []string
	invalidSeen := map[string]bool{}

	for _, match := range citationRe.FindAllStringSubmatch(text, -1) {
		for _, id := range expandMarker(match[1]) {
			src, ok := known[id]
			if !ok {
				if !invalidSeen[id] {
					invalidSeen[id] = true
					invalid = append(invalid, id)
				}
				continue
			}
			total++
			distinct[id] = true
			index[id] = src
		}
	}

	if strict && len(invalid) > 0 {
		sort.Slice(invalid, func(i, j int) bool {
			a, _ := strconv.Atoi(invalid[i])
			b, _ := strconv.Atoi(invalid[j])
			return a < b
		})
		return nil, CitationMetadata{}, &InvalidCitationError{IDs: invalid}
	}

	meta := CitationMetadata{
		TotalCitations:  total,
		DistinctSources: len(distinct),
	}
	if len(sources) > 0 {
		meta.SourceUsagePercent = int(math.Round(float64(len(distinct)) / float64(len(sources)) * 100))
	}
	return index, meta, nil
}

// expandMarker flattens the inside of one bracket pair ("2, 4", "6-8") into
// individual ids in order of appearance.
func expandMarker(body string) []string {
	var ids []string
	for _, part := range strings.Split(body, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if lo, hi, ok := splitRange(part); ok {
			for n := lo; n <= hi; n++ {
				ids = append(ids, strconv.Itoa(n))
			}
			continue
		}
		ids = append(ids, part)
	}
	return ids
}

func splitRange(part string) (lo, hi int, ok bool) {
	dash := strings.Index(part, "-")
	if dash <= 0 {
		return 0, 0, false
	}
	lo, err1 := strconv.Atoi(strings.TrimSpace(part[:dash]))
	hi, err2 := strconv.Atoi(strings.TrimSpace(part[dash+1:]))
	if err1 != nil || err2 != nil || lo > hi || hi-lo > maxRangeSpan {
		return 0, 0, false
	}
	return lo, hi, true
}
