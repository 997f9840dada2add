package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/reslab/paper-search/internal/domain"
	"github.com/reslab/paper-search/internal/search"
)

// maxRequestBodySize limits search request bodies to 1 MB.
const maxRequestBodySize = 1 << 20

// searchRequest is the JSON request body for POST /api/v1/search.
type searchRequest struct {
	Query    string `json:"query" validate:"required,min=2,max=1000"`
	Mode     string `json:"mode" validate:"omitempty,oneof=quick ai auto"`
	Category string `json:"category" validate:"omitempty,max=64"`
	Limit    int    `json:"limit" validate:"omitempty,min=1,max=100"`
}

// categoryResponse describes one routing category.
type categoryResponse struct {
	ID          string   `json:"id"`
	DisplayName string   `json:"display_name"`
	Sources     []string `json:"sources"`
}

// handleSearch handles POST /api/v1/search.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var req searchRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodySize))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}

	if err := s.validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	resp, err := s.searcher.Search(r.Context(), search.Request{
		Query:    req.Query,
		Mode:     req.Mode,
		Category: req.Category,
		Limit:    req.Limit,
	})
	if err != nil {
		s.writeSearchError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// listCategories handles GET /api/v1/categories.
func (s *Server) listCategories(w http.ResponseWriter, r *http.Request) {
	ids := s.categories.IDs()
	out := make([]categoryResponse, 0, len(ids))
	for _, id := range ids {
		profile, ok := s.categories.Profile(id)
		if !ok {
			continue
		}
		out = append(out, categoryResponse{
			ID:          profile.ID,
			DisplayName: profile.DisplayName,
			Sources:     profile.SourceHierarchy,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"categories": out,
		"fallback":   s.categories.FallbackID(),
	})
}

// writeSearchError maps pipeline errors to HTTP status codes. Provider
// failures never reach here; the orchestrator degrades them.
func (s *Server) writeSearchError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "rate limited, retry later")
	case errors.Is(err, domain.ErrStoreUnavailable):
		s.logger.Error().Err(err).Msg("search failed: store unavailable")
		writeError(w, http.StatusServiceUnavailable, "search backend unavailable")
	case domain.IsProviderTimeout(err):
		writeError(w, http.StatusGatewayTimeout, "search timed out")
	default:
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("search failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// validationMessage renders a validator error as a single client-facing
// message naming the first offending field.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request"
	}
	f := verrs[0]
	field := strings.ToLower(f.Field())
	switch f.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, f.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, f.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, f.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
