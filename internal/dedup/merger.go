// Package dedup collapses paper lists fetched from multiple providers into
// unique canonical records.
package dedup

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/reslab/paper-search/internal/domain"
)

// Default thresholds and bounds for the merger.
const (
	// DefaultTitleThreshold is the similarity ratio at or above which two
	// titles are considered the same paper.
	DefaultTitleThreshold = 0.85

	// DefaultMaxPairwiseCandidates caps the number of merge groups that
	// enter the O(n²) title-comparison pass. Identifier grouping removes
	// most true duplicates first, so the remainder is normally small.
	DefaultMaxPairwiseCandidates = 500
)

// Config holds the configuration for the merger.
type Config struct {
	// TitleThreshold is the normalized-title similarity ratio at or above
	// which two papers without a shared identifier merge.
	TitleThreshold float64

	// MaxPairwiseCandidates bounds the pairwise title comparison pass.
	// Groups beyond this count skip pass 2 and stay separate.
	MaxPairwiseCandidates int

	// TrustOrder resolves field conflicts inside a merge group. Earlier
	// sources win; locally stored papers always win.
	TrustOrder domain.TrustOrder
}

// applyDefaults sets default values for unset configuration fields.
func (c *Config) applyDefaults() {
	if c.TitleThreshold == 0 {
		c.TitleThreshold = DefaultTitleThreshold
	}
	if c.MaxPairwiseCandidates == 0 {
		c.MaxPairwiseCandidates = DefaultMaxPairwiseCandidates
	}
	if len(c.TrustOrder) == 0 {
		c.TrustOrder = domain.DefaultTrustOrder
	}
}

// Merger deduplicates papers in two passes: transitive identifier grouping,
// then normalized-title similarity on the remainder. Merge is deterministic
// and idempotent.
type Merger struct {
	cfg Config
}

// NewMerger creates a merger with the given configuration.
func NewMerger(cfg Config) *Merger {
	cfg.applyDefaults()
	return &Merger{cfg: cfg}
}

// Merge collapses the input into unique canonical papers. Output order is
// deterministic: groups appear in order of their first member's position in
// the input.
func (m *Merger) Merge(papers []*domain.Paper) []*domain.Paper {
	if len(papers) <= 1 {
		return papers
	}

	uf := newUnionFind(len(papers))

	// Pass 1: union papers sharing any identifier value. Transitivity is
	// free with union-find: A~B on DOI and B~C on arXiv ID puts A, B and
	// C in one group.
	seen := make(map[string]int)
	for i, p := range papers {
		for idType, value := range p.Identifiers() {
			key := fmt.Sprintf("%s:%s", idType, value)
			if j, ok := seen[key]; ok {
				uf.union(i, j)
			} else {
				seen[key] = i
			}
		}
	}

	// Pass 2: compare normalized titles across group representatives,
	// bounded to keep the quadratic pass from dominating on large inputs.
	reps := uf.representatives()
	if len(reps) <= m.cfg.MaxPairwiseCandidates {
		titles := make(map[int]string, len(reps))
		for _, r := range reps {
			titles[r] = NormalizeTitle(papers[r].Title)
		}

		for i := 0; i < len(reps); i++ {
			for j := i + 1; j < len(reps); j++ {
				a, b := reps[i], reps[j]
				if uf.find(a) == uf.find(b) {
					continue
				}
				if titles[a] == "" || titles[b] == "" {
					continue
				}
				if TitleSimilarity(titles[a], titles[b]) >= m.cfg.TitleThreshold {
					uf.union(a, b)
				}
			}
		}
	}

	// Collect groups in order of first appearance.
	groupOrder := make([]int, 0, len(papers))
	groups := make(map[int][]*domain.Paper, len(papers))
	for i, p := range papers {
		root := uf.find(i)
		if _, ok := groups[root]; !ok {
			groupOrder = append(groupOrder, root)
		}
		groups[root] = append(groups[root], p)
	}

	merged := make([]*domain.Paper, 0, len(groupOrder))
	for _, root := range groupOrder {
		merged = append(merged, m.canonical(groups[root]))
	}

	return merged
}

// canonical produces one canonical paper from a merge group: the union of
// non-null fields, conflicts resolved by trust rank, citation count taken
// as the maximum reported value.
func (m *Merger) canonical(group []*domain.Paper) *domain.Paper {
	if len(group) == 1 {
		return group[0]
	}

	// Find the most trusted member; ties keep the earlier one.
	best := 0
	for i := 1; i < len(group); i++ {
		if m.cfg.TrustOrder.Rank(group[i].Source) < m.cfg.TrustOrder.Rank(group[best].Source) {
			best = i
		}
	}

	// Start from a copy of the most trusted member so merging never
	// mutates the inputs.
	out := *group[best]

	// Fill gaps from the remaining members, walking them by trust rank so
	// the first non-null value comes from the most trusted source that
	// has it.
	rest := make([]*domain.Paper, 0, len(group)-1)
	for i, p := range group {
		if i != best {
			rest = append(rest, p)
		}
	}
	sortByTrust(rest, m.cfg.TrustOrder)

	for _, p := range rest {
		if out.ID == uuid.Nil && p.ID != uuid.Nil {
			out.ID = p.ID
		}
		if out.DOI == "" {
			out.DOI = p.DOI
		}
		if out.ArXivID == "" {
			out.ArXivID = p.ArXivID
		}
		if out.SemanticScholarID == "" {
			out.SemanticScholarID = p.SemanticScholarID
		}
		if out.OpenAlexID == "" {
			out.OpenAlexID = p.OpenAlexID
		}
		if out.Title == "" {
			out.Title = p.Title
		}
		if out.Abstract == "" {
			out.Abstract = p.Abstract
		}
		if len(out.Authors) == 0 {
			out.Authors = p.Authors
		}
		if out.PublicationDate == nil {
			out.PublicationDate = p.PublicationDate
		}
		if out.Venue == "" {
			out.Venue = p.Venue
		}
		if out.PDFURL == "" {
			out.PDFURL = p.PDFURL
		}
		if out.Category == "" {
			out.Category = p.Category
		}
		if out.Embedding == nil {
			out.Embedding = p.Embedding
		}
		// Providers under-report citations; take the maximum.
		if p.CitationCount > out.CitationCount {
			out.CitationCount = p.CitationCount
		}
	}

	return &out
}

// sortByTrust orders papers by ascending trust rank, preserving input
// order for equal ranks.
func sortByTrust(papers []*domain.Paper, trust domain.TrustOrder) {
	// Insertion sort: groups are tiny and stability matters.
	for i := 1; i < len(papers); i++ {
		for j := i; j > 0 && trust.Rank(papers[j].Source) < trust.Rank(papers[j-1].Source); j-- {
			papers[j], papers[j-1] = papers[j-1], papers[j]
		}
	}
}

// unionFind is a standard disjoint-set structure with path compression
// and union by size.
type unionFind struct {
	parent []int
	size   []int
}

func newUnionFind(n int) *unionFind {
	parent := make([]int, n)
	size := make([]int, n)
	for i := range parent {
		parent[i] = i
		size[i] = 1
	}
	return &unionFind{parent: parent, size: size}
}

func (u *unionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	if u.size[ra] < u.size[rb] {
		ra, rb = rb, ra
	}
	u.parent[rb] = ra
	u.size[ra] += u.size[rb]
}

// representatives returns the group roots in ascending index order.
func (u *unionFind) representatives() []int {
	reps := make([]int, 0, len(u.parent))
	for i := range u.parent {
		if u.find(i) == i {
			reps = append(reps, i)
		}
	}
	return reps
}
