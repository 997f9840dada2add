package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/reslab/paper-search/internal/domain"
)

// pgUniqueViolation is the PostgreSQL error code for unique constraint
// violations, hit when two requests insert the same identifier concurrently.
const pgUniqueViolation = "23505"

// PaperRepository defines metadata persistence for papers.
type PaperRepository interface {
	// UpsertByIdentifier inserts the paper if no row shares any of its
	// identifiers, otherwise gap-fills the existing row and returns it.
	UpsertByIdentifier(ctx context.Context, paper *domain.Paper) (*domain.Paper, error)
	// MarkEmbedded records that the paper's vector exists in the index.
	MarkEmbedded(ctx context.Context, id uuid.UUID) error
	// LexicalSearch returns papers whose title or abstract contains the
	// term, optionally restricted to a category.
	LexicalSearch(ctx context.Context, term, category string, limit int) ([]*domain.Paper, error)
	// GetByIDs returns the papers with the given IDs, in no defined order.
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*domain.Paper, error)
}

// Compile-time interface verification.
var _ PaperRepository = (*PgPaperRepository)(nil)

// PgPaperRepository is a PostgreSQL implementation of PaperRepository.
type PgPaperRepository struct {
	db DBTX
}

// NewPgPaperRepository creates a new PostgreSQL paper repository.
func NewPgPaperRepository(db DBTX) *PgPaperRepository {
	return &PgPaperRepository{db: db}
}

// paperColumns is the canonical column list for paper SELECTs.
const paperColumns = `id, doi, arxiv_id, semantic_scholar_id, openalex_id,
		title, abstract, authors, publication_date, venue,
		citation_count, pdf_url, category, source, embedded_at,
		created_at, updated_at`

// UpsertByIdentifier inserts a new paper or gap-fills the stored row that
// shares any of its identifiers. Stored non-empty fields win over incoming
// ones; the citation count takes the maximum of the two.
func (r *PgPaperRepository) UpsertByIdentifier(ctx context.Context, paper *domain.Paper) (*domain.Paper, error) {
	if paper == nil {
		return nil, domain.NewValidationError("paper", "paper cannot be nil")
	}
	if paper.Title == "" {
		return nil, domain.NewValidationError("title", "title is required")
	}

	if existing, err := r.findByAnyIdentifier(ctx, paper); err != nil {
		return nil, err
	} else if existing != nil {
		return r.update(ctx, existing.ID, paper)
	}

	inserted, err := r.insert(ctx, paper)
	if err == nil {
		return inserted, nil
	}

	// A concurrent request may have inserted the same identifier between
	// the lookup and the insert; fall back to the update path once.
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		existing, findErr := r.findByAnyIdentifier(ctx, paper)
		if findErr != nil {
			return nil, findErr
		}
		if existing != nil {
			return r.update(ctx, existing.ID, paper)
		}
	}
	return nil, err
}

// findByAnyIdentifier returns the stored paper sharing any non-empty
// identifier with the given one, or nil when no row matches.
func (r *PgPaperRepository) findByAnyIdentifier(ctx context.Context, paper *domain.Paper) (*domain.Paper, error) {
	if !paper.HasIdentifier() {
		return nil, nil
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM papers
		WHERE (doi <> '' AND doi = $1)
			OR (arxiv_id <> '' AND arxiv_id = $2)
			OR (semantic_scholar_id <> '' AND semantic_scholar_id = $3)
			OR (openalex_id <> '' AND openalex_id = $4)
		LIMIT 1`, paperColumns)

	row := r.db.QueryRow(ctx, query,
		domain.NormalizeDOI(paper.DOI),
		paper.ArXivID,
		paper.SemanticScholarID,
		paper.OpenAlexID,
	)
	found, err := scanPaper(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find paper by identifier: %w", err)
	}
	return found, nil
}

// insert stores a new paper row, assigning an ID when the paper has none.
func (r *PgPaperRepository) insert(ctx context.Context, paper *domain.Paper) (*domain.Paper, error) {
	authorsJSON, err := json.Marshal(paper.Authors)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal authors: %w", err)
	}

	if paper.ID == uuid.Nil {
		paper.ID = uuid.New()
	}
	now := time.Now().UTC()

	query := fmt.Sprintf(`
		INSERT INTO papers (
			id, doi, arxiv_id, semantic_scholar_id, openalex_id,
			title, abstract, authors, publication_date, venue,
			citation_count, pdf_url, category, source,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $15
		)
		RETURNING %s`, paperColumns)

	row := r.db.QueryRow(ctx, query,
		paper.ID,
		domain.NormalizeDOI(paper.DOI),
		paper.ArXivID,
		paper.SemanticScholarID,
		paper.OpenAlexID,
		paper.Title,
		paper.Abstract,
		authorsJSON,
		paper.PublicationDate,
		paper.Venue,
		paper.CitationCount,
		paper.PDFURL,
		paper.Category,
		paper.Source,
		now,
	)
	stored, err := scanPaper(row)
	if err != nil {
		return nil, fmt.Errorf("failed to insert paper: %w", err)
	}
	return stored, nil
}

// update gap-fills the row with the incoming paper's fields. Identifier
// columns are unioned, text fields keep their stored value unless empty,
// and the citation count takes the maximum.
func (r *PgPaperRepository) update(ctx context.Context, id uuid.UUID, paper *domain.Paper) (*domain.Paper, error) {
	authorsJSON, err := json.Marshal(paper.Authors)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal authors: %w", err)
	}

	query := fmt.Sprintf(`
		UPDATE papers SET
			doi = COALESCE(NULLIF(doi, ''), $2),
			arxiv_id = COALESCE(NULLIF(arxiv_id, ''), $3),
			semantic_scholar_id = COALESCE(NULLIF(semantic_scholar_id, ''), $4),
			openalex_id = COALESCE(NULLIF(openalex_id, ''), $5),
			abstract = COALESCE(NULLIF(abstract, ''), $6),
			authors = CASE WHEN authors IS NULL OR authors = 'null'::jsonb OR authors = '[]'::jsonb
				THEN $7::jsonb ELSE authors END,
			publication_date = COALESCE(publication_date, $8),
			venue = COALESCE(NULLIF(venue, ''), $9),
			citation_count = GREATEST(citation_count, $10),
			pdf_url = COALESCE(NULLIF(pdf_url, ''), $11),
			category = COALESCE(NULLIF(category, ''), $12),
			updated_at = NOW()
		WHERE id = $1
		RETURNING %s`, paperColumns)

	row := r.db.QueryRow(ctx, query,
		id,
		domain.NormalizeDOI(paper.DOI),
		paper.ArXivID,
		paper.SemanticScholarID,
		paper.OpenAlexID,
		paper.Abstract,
		authorsJSON,
		paper.PublicationDate,
		paper.Venue,
		paper.CitationCount,
		paper.PDFURL,
		paper.Category,
	)
	stored, err := scanPaper(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("paper", id.String())
		}
		return nil, fmt.Errorf("failed to update paper: %w", err)
	}
	return stored, nil
}

// MarkEmbedded records that the paper's embedding exists in the vector index.
func (r *PgPaperRepository) MarkEmbedded(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE papers
		SET embedded_at = NOW(), updated_at = NOW()
		WHERE id = $1`

	result, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to mark paper embedded: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.NewNotFoundError("paper", id.String())
	}
	return nil
}

// LexicalSearch returns papers whose title or abstract contains the term,
// most cited first. An empty category matches all categories.
func (r *PgPaperRepository) LexicalSearch(ctx context.Context, term, category string, limit int) ([]*domain.Paper, error) {
	if term == "" {
		return nil, domain.NewValidationError("term", "search term is required")
	}
	if limit <= 0 {
		return nil, domain.NewValidationError("limit", "limit must be positive")
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM papers
		WHERE (title ILIKE '%%' || $1 || '%%' OR abstract ILIKE '%%' || $1 || '%%')
			AND ($2 = '' OR category = $2)
		ORDER BY citation_count DESC, created_at DESC
		LIMIT $3`, paperColumns)

	rows, err := r.db.Query(ctx, query, escapeLikeTerm(term), category, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search papers: %w", err)
	}
	defer rows.Close()

	return collectPapers(rows)
}

// escapeLikeTerm escapes ILIKE wildcard characters so the term is matched
// literally instead of acting as a pattern.
func escapeLikeTerm(term string) string {
	return likeEscaper.Replace(term)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// GetByIDs returns the papers with the given IDs. Missing IDs are skipped.
func (r *PgPaperRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*domain.Paper, error) {
	if len(ids) == 0 {
		return []*domain.Paper{}, nil
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM papers
		WHERE id = ANY($1)`, paperColumns)

	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to get papers by ids: %w", err)
	}
	defer rows.Close()

	return collectPapers(rows)
}

// paperScanDest holds the destination pointers for scanning a paper row.
type paperScanDest struct {
	paper       domain.Paper
	authorsJSON []byte
	embeddedAt  *time.Time
}

func (d *paperScanDest) destinations() []interface{} {
	return []interface{}{
		&d.paper.ID, &d.paper.DOI, &d.paper.ArXivID, &d.paper.SemanticScholarID, &d.paper.OpenAlexID,
		&d.paper.Title, &d.paper.Abstract, &d.authorsJSON, &d.paper.PublicationDate, &d.paper.Venue,
		&d.paper.CitationCount, &d.paper.PDFURL, &d.paper.Category, &d.paper.Source, &d.embeddedAt,
		&d.paper.CreatedAt, &d.paper.UpdatedAt,
	}
}

// finalize performs post-scan processing: unmarshals JSON fields and marks
// the row as locally sourced.
func (d *paperScanDest) finalize() (*domain.Paper, error) {
	if len(d.authorsJSON) > 0 {
		if err := json.Unmarshal(d.authorsJSON, &d.paper.Authors); err != nil {
			return nil, fmt.Errorf("failed to unmarshal authors: %w", err)
		}
	}

	// Rows read back from the store are local records regardless of which
	// provider originally supplied them.
	d.paper.Source = domain.SourceTypeLocal

	return &d.paper, nil
}

// scanPaper scans a single row into a Paper.
func scanPaper(row pgx.Row) (*domain.Paper, error) {
	var dest paperScanDest
	if err := row.Scan(dest.destinations()...); err != nil {
		return nil, err
	}
	return dest.finalize()
}

// collectPapers drains rows into a slice of papers.
func collectPapers(rows pgx.Rows) ([]*domain.Paper, error) {
	papers := make([]*domain.Paper, 0)
	for rows.Next() {
		var dest paperScanDest
		if err := rows.Scan(dest.destinations()...); err != nil {
			return nil, fmt.Errorf("failed to scan paper: %w", err)
		}
		paper, err := dest.finalize()
		if err != nil {
			return nil, err
		}
		papers = append(papers, paper)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating papers: %w", err)
	}
	return papers, nil
}
