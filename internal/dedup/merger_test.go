package dedup

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reslab/paper-search/internal/domain"
)

func newTestMerger() *Merger {
	return NewMerger(Config{})
}

func TestMerger_Merge_Identifiers(t *testing.T) {
	t.Parallel()

	t.Run("same DOI merges into one record", func(t *testing.T) {
		t.Parallel()

		papers := []*domain.Paper{
			{
				DOI:    "10.1000/abc",
				Title:  "Neural Nets",
				Source: domain.SourceTypeArXiv,
			},
			{
				DOI:           "10.1000/abc",
				Title:         "Neural Networks: A Survey",
				Abstract:      "A survey of neural network architectures.",
				CitationCount: 420,
				Source:        domain.SourceTypeSemanticScholar,
			},
		}

		merged := newTestMerger().Merge(papers)
		require.Len(t, merged, 1)

		p := merged[0]
		// Semantic Scholar outranks arXiv, so its title wins.
		assert.Equal(t, "Neural Networks: A Survey", p.Title)
		assert.Equal(t, "A survey of neural network architectures.", p.Abstract)
		assert.Equal(t, 420, p.CitationCount)
		assert.Equal(t, "10.1000/abc", p.DOI)
	})

	t.Run("transitive identifier groups collapse", func(t *testing.T) {
		t.Parallel()

		// A shares a DOI with B; B shares an arXiv id with C.
		papers := []*domain.Paper{
			{DOI: "10.1/x", Title: "Paper A", Source: domain.SourceTypeOpenAlex, OpenAlexID: "W1"},
			{DOI: "10.1/x", ArXivID: "2301.00001", Title: "Paper B", Source: domain.SourceTypeArXiv},
			{ArXivID: "2301.00001", SemanticScholarID: "s2-1", Title: "Paper C", Source: domain.SourceTypeSemanticScholar},
		}

		merged := newTestMerger().Merge(papers)
		require.Len(t, merged, 1)

		// The canonical record unions all identifiers.
		p := merged[0]
		assert.Equal(t, "10.1/x", p.DOI)
		assert.Equal(t, "2301.00001", p.ArXivID)
		assert.Equal(t, "s2-1", p.SemanticScholarID)
		assert.Equal(t, "W1", p.OpenAlexID)
	})

	t.Run("distinct identifiers stay separate", func(t *testing.T) {
		t.Parallel()

		papers := []*domain.Paper{
			{DOI: "10.1/a", Title: "Quantum Error Correction", Source: domain.SourceTypeArXiv},
			{DOI: "10.1/b", Title: "Galaxy Cluster Dynamics", Source: domain.SourceTypeArXiv},
		}

		merged := newTestMerger().Merge(papers)
		assert.Len(t, merged, 2)
	})

	t.Run("citation count takes the maximum", func(t *testing.T) {
		t.Parallel()

		papers := []*domain.Paper{
			{DOI: "10.1/c", Title: "T", CitationCount: 900, Source: domain.SourceTypeOpenAlex},
			{DOI: "10.1/c", Title: "T", CitationCount: 120, Source: domain.SourceTypeSemanticScholar},
		}

		merged := newTestMerger().Merge(papers)
		require.Len(t, merged, 1)
		assert.Equal(t, 900, merged[0].CitationCount)
	})

	t.Run("local papers keep their surrogate key", func(t *testing.T) {
		t.Parallel()

		id := uuid.New()
		papers := []*domain.Paper{
			{DOI: "10.1/d", Title: "Stored Paper", Source: domain.SourceTypeSemanticScholar},
			{ID: id, DOI: "10.1/d", Title: "Stored Paper", Source: domain.SourceTypeLocal},
		}

		merged := newTestMerger().Merge(papers)
		require.Len(t, merged, 1)
		assert.Equal(t, id, merged[0].ID)
		assert.Equal(t, domain.SourceTypeLocal, merged[0].Source)
	})
}

func TestMerger_Merge_Titles(t *testing.T) {
	t.Parallel()

	t.Run("near-identical titles merge without shared identifiers", func(t *testing.T) {
		t.Parallel()

		papers := []*domain.Paper{
			{
				ArXivID: "2301.00002",
				Title:   "Deep Learning for Protein Folding",
				Source:  domain.SourceTypeArXiv,
			},
			{
				OpenAlexID: "W42",
				Title:      "Deep learning for protein folding.",
				Venue:      "Bioinformatics",
				Source:     domain.SourceTypeOpenAlex,
			},
		}

		merged := newTestMerger().Merge(papers)
		require.Len(t, merged, 1)

		p := merged[0]
		assert.Equal(t, "2301.00002", p.ArXivID)
		assert.Equal(t, "W42", p.OpenAlexID)
		assert.Equal(t, "Bioinformatics", p.Venue)
	})

	t.Run("dissimilar titles stay separate", func(t *testing.T) {
		t.Parallel()

		papers := []*domain.Paper{
			{Title: "Adversarial Examples in Vision", Source: domain.SourceTypeArXiv},
			{Title: "Bayesian Optimization of Chemistry", Source: domain.SourceTypeOpenAlex},
		}

		merged := newTestMerger().Merge(papers)
		assert.Len(t, merged, 2)
	})

	t.Run("pairwise pass is skipped beyond the candidate cap", func(t *testing.T) {
		t.Parallel()

		merger := NewMerger(Config{MaxPairwiseCandidates: 2})
		papers := []*domain.Paper{
			{Title: "Same Title Here", Source: domain.SourceTypeArXiv},
			{Title: "Same Title Here", Source: domain.SourceTypeOpenAlex},
			{Title: "A Different One", Source: domain.SourceTypePubMed},
		}

		// Three groups exceed the cap of two, so no title merging happens.
		merged := merger.Merge(papers)
		assert.Len(t, merged, 3)
	})
}

func TestMerger_Merge_Properties(t *testing.T) {
	t.Parallel()

	samplePapers := func() []*domain.Paper {
		date := time.Date(2023, time.March, 1, 0, 0, 0, 0, time.UTC)
		return []*domain.Paper{
			{DOI: "10.1/p1", Title: "Graph Transformers", Source: domain.SourceTypeSemanticScholar, SemanticScholarID: "s1", CitationCount: 10},
			{DOI: "10.1/p1", ArXivID: "2302.11111", Title: "Graph Transformers", Source: domain.SourceTypeArXiv, PublicationDate: &date},
			{ArXivID: "2302.11111", Title: "Graph transformers", Source: domain.SourceTypeOpenAlex, OpenAlexID: "W7", CitationCount: 25},
			{Title: "Sparse Attention Kernels", Source: domain.SourceTypeArXiv, ArXivID: "2302.22222"},
			{Title: "Sparse attention kernels", Source: domain.SourceTypeOpenAlex, OpenAlexID: "W8"},
			{DOI: "10.1/p9", Title: "Unrelated Molecular Dynamics", Source: domain.SourceTypePubMed},
		}
	}

	t.Run("merge is idempotent", func(t *testing.T) {
		t.Parallel()

		merger := newTestMerger()
		once := merger.Merge(samplePapers())
		twice := merger.Merge(once)

		require.Equal(t, len(once), len(twice))
		for i := range once {
			assert.Equal(t, once[i], twice[i])
		}
	})

	t.Run("merge is deterministic", func(t *testing.T) {
		t.Parallel()

		merger := newTestMerger()
		a := merger.Merge(samplePapers())
		b := merger.Merge(samplePapers())

		require.Equal(t, len(a), len(b))
		for i := range a {
			assert.Equal(t, a[i].Title, b[i].Title)
			assert.Equal(t, a[i].Identifiers(), b[i].Identifiers())
		}
	})

	t.Run("no two outputs share an identifier value", func(t *testing.T) {
		t.Parallel()

		merged := newTestMerger().Merge(samplePapers())

		seen := make(map[string]bool)
		for _, p := range merged {
			for idType, value := range p.Identifiers() {
				key := string(idType) + ":" + value
				assert.False(t, seen[key], "identifier %s appears twice", key)
				seen[key] = true
			}
		}
	})

	t.Run("inputs are never mutated", func(t *testing.T) {
		t.Parallel()

		papers := []*domain.Paper{
			{DOI: "10.1/z", Title: "Original Title", Source: domain.SourceTypeArXiv},
			{DOI: "10.1/z", Title: "Better Title", Abstract: "abs", Source: domain.SourceTypeSemanticScholar},
		}

		newTestMerger().Merge(papers)
		assert.Equal(t, "Original Title", papers[0].Title)
		assert.Empty(t, papers[0].Abstract)
	})
}

func TestNormalizeTitle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		title string
		want  string
	}{
		{
			name:  "case folds and strips punctuation",
			title: "Neural Networks: A Survey!",
			want:  "neural networks a survey",
		},
		{
			name:  "collapses whitespace",
			title: "  Deep \t Learning\n Methods ",
			want:  "deep learning methods",
		},
		{
			name:  "keeps digits",
			title: "GPT-4 Technical Report",
			want:  "gpt4 technical report",
		},
		{
			name:  "empty input",
			title: "",
			want:  "",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, NormalizeTitle(tt.title))
		})
	}
}

func TestTitleSimilarity(t *testing.T) {
	t.Parallel()

	t.Run("identical titles score 1", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, 1.0, TitleSimilarity("deep learning", "deep learning"))
	})

	t.Run("close titles score above the default threshold", func(t *testing.T) {
		t.Parallel()
		got := TitleSimilarity(
			NormalizeTitle("Deep Learning for Protein Folding"),
			NormalizeTitle("Deep learning for protein folding."),
		)
		assert.GreaterOrEqual(t, got, DefaultTitleThreshold)
	})

	t.Run("unrelated titles score low", func(t *testing.T) {
		t.Parallel()
		got := TitleSimilarity("quantum chromodynamics", "goat disease detection")
		assert.Less(t, got, 0.5)
	})

	t.Run("empty strings score zero", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, 0.0, TitleSimilarity("", "anything"))
	})
}
