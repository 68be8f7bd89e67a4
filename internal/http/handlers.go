package http

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"

	"finboard/internal/core"
	"finboard/internal/log"
	"finboard/internal/providers"
	"finboard/internal/query"
	"finboard/internal/services"
)

const maxListLimit = 10000

func (s *Server) filterSpec(r *http.Request) (query.FilterSpec, error) {
	return query.SpecFromValues(r.URL.Query(), s.svc.Location())
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	spec, err := s.filterSpec(r)
	if err != nil {
		writeError(w, r, log.OpList, err)
		return
	}
	limit, err := parsePositiveInt(r.URL.Query(), "limit", 0, maxListLimit)
	if err != nil {
		writeError(w, r, log.OpList, err)
		return
	}
	records, err := s.svc.List(r.Context(), spec)
	if err != nil {
		writeError(w, r, log.OpList, err)
		return
	}
	total := len(records)
	if limit > 0 && limit < total {
		records = records[:limit]
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total":        total,
		"transactions": newTransactionViews(records),
	})
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	t, err := s.svc.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, log.OpGet, err)
		return
	}
	writeJSON(w, http.StatusOK, newTransactionView(t))
}

type updateRequest struct {
	Category *string `json:"category"`
	Notes    *string `json:"notes"`
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}
	if req.Category == nil && req.Notes == nil {
		writeError(w, r, log.OpUpdate, &core.ValidationError{Field: "body", Reason: errors.New("category or notes is required")})
		return
	}

	var category, notes string
	if req.Category != nil {
		category = sanitizeInput(*req.Category)
		if len(category) > 100 {
			writeError(w, r, log.OpUpdate, &core.ValidationError{Field: "category", Value: category, Reason: errors.New("too long")})
			return
		}
	}
	if req.Notes != nil {
		notes = sanitizeInput(*req.Notes)
		if len(notes) > 1000 {
			writeError(w, r, log.OpUpdate, &core.ValidationError{Field: "notes", Reason: errors.New("too long")})
			return
		}
	}

	id := r.PathValue("id")
	var (
		t   core.Transaction
		err error
	)
	if req.Category != nil {
		if t, err = s.svc.UpdateCategory(r.Context(), id, category); err != nil {
			writeError(w, r, log.OpUpdate, err)
			return
		}
	}
	if req.Notes != nil {
		if t, err = s.svc.UpdateNotes(r.Context(), id, notes); err != nil {
			writeError(w, r, log.OpUpdate, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, newTransactionView(t))
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, log.OpDelete, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleClearTransactions requires ?confirm=true so a stray DELETE cannot wipe the store.
func (s *Server) handleClearTransactions(w http.ResponseWriter, r *http.Request) {
	if ok, _ := strconv.ParseBool(r.URL.Query().Get("confirm")); !ok {
		writeError(w, r, log.OpClear, &core.ValidationError{Field: "confirm", Reason: errors.New("must be true")})
		return
	}
	if err := s.svc.Clear(r.Context()); err != nil {
		writeError(w, r, log.OpClear, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	days, err := parsePositiveInt(r.URL.Query(), "days", services.DefaultDays, maxDays)
	if err != nil {
		writeError(w, r, log.OpRollup, err)
		return
	}
	d, err := s.svc.Dashboard(r.Context(), days)
	if err != nil {
		writeError(w, r, log.OpRollup, err)
		return
	}
	writeJSON(w, http.StatusOK, newDashboardView(d))
}

func (s *Server) handleMonthlySeries(w http.ResponseWriter, r *http.Request) {
	n, err := parsePositiveInt(r.URL.Query(), "months", services.DashboardMonths, maxMonths)
	if err != nil {
		writeError(w, r, log.OpRollup, err)
		return
	}
	months, err := s.svc.MonthlySeries(r.Context(), n)
	if err != nil {
		writeError(w, r, log.OpRollup, err)
		return
	}
	writeJSON(w, http.StatusOK, newMonthViews(months))
}

func (s *Server) handleMonth(w http.ResponseWriter, r *http.Request) {
	m, err := s.svc.Month(r.Context(), r.PathValue("month"))
	if err != nil {
		writeError(w, r, log.OpRollup, err)
		return
	}
	writeJSON(w, http.StatusOK, newMonthView(m))
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	spec, err := s.filterSpec(r)
	if err != nil {
		writeError(w, r, log.OpRollup, err)
		return
	}
	totals, err := s.svc.Categories(r.Context(), spec)
	if err != nil {
		writeError(w, r, log.OpRollup, err)
		return
	}
	writeJSON(w, http.StatusOK, newCategoryViews(totals))
}

func (s *Server) handleDailySeries(w http.ResponseWriter, r *http.Request) {
	days, err := parsePositiveInt(r.URL.Query(), "days", services.DefaultDays, maxDays)
	if err != nil {
		writeError(w, r, log.OpRollup, err)
		return
	}
	points, err := s.svc.DailySeries(r.Context(), days)
	if err != nil {
		writeError(w, r, log.OpRollup, err)
		return
	}
	writeJSON(w, http.StatusOK, newDailyViews(points))
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	older, err := requireParam(q, "older")
	if err != nil {
		writeError(w, r, log.OpCompare, err)
		return
	}
	newer, err := requireParam(q, "newer")
	if err != nil {
		writeError(w, r, log.OpCompare, err)
		return
	}
	res, err := s.svc.CompareMonths(r.Context(), older, newer)
	if err != nil {
		writeError(w, r, log.OpCompare, err)
		return
	}
	writeJSON(w, http.StatusOK, newComparisonView(res))
}

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	spec, err := s.filterSpec(r)
	if err != nil {
		writeError(w, r, log.OpExport, err)
		return
	}
	var buf bytes.Buffer
	n, err := s.svc.Export(r.Context(), &buf, spec)
	if err != nil {
		writeError(w, r, log.OpExport, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+s.svc.ExportFilename()+`"`)
	w.Header().Set("X-Export-Count", strconv.Itoa(n))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (s *Server) handleExportSheets(w http.ResponseWriter, r *http.Request) {
	spec, err := s.filterSpec(r)
	if err != nil {
		writeError(w, r, log.OpExport, err)
		return
	}
	n, err := s.svc.ExportSheets(r.Context(), spec)
	if err != nil {
		writeError(w, r, log.OpExport, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"exported": n})
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	source, err := requireParam(r.URL.Query(), "source")
	if err != nil {
		writeError(w, r, log.OpImport, err)
		return
	}
	body, err := importBody(w, r)
	if err != nil {
		writeError(w, r, log.OpImport, err)
		return
	}
	defer body.Close()

	res, err := s.svc.Import(r.Context(), body, source)
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			err = errBodyTooLarge
		}
		writeError(w, r, log.OpImport, err)
		return
	}
	log.NewStructuredLogger(log.FromContext(r.Context())).
		LogImport(r.Context(), log.OpImport, res.Source, res.Imported, res.Skipped, res.Rejected(), res.Months)
	writeJSON(w, http.StatusOK, newImportView(res))
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	days, err := parsePositiveInt(r.URL.Query(), "days", services.DefaultSyncDays, maxDays)
	if err != nil {
		writeError(w, r, log.OpSync, err)
		return
	}
	res, err := s.svc.SyncProviders(r.Context(), days)
	if err != nil {
		writeError(w, r, log.OpSync, err)
		return
	}
	writeJSON(w, http.StatusOK, newSyncView(res))
}

func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.svc.Accounts(r.Context())
	if err != nil {
		writeError(w, r, log.OpSync, err)
		return
	}
	if accounts == nil {
		accounts = []providers.Account{}
	}
	writeJSON(w, http.StatusOK, accounts)
}

func (s *Server) handleSources(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Sources())
}
