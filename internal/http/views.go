package http

import (
	"time"

	"finboard/internal/core"
	"finboard/internal/importer"
	"finboard/internal/services"
)

// JSON renderings of the domain types. Amounts are strings with two decimals.

type transactionView struct {
	ID          string `json:"id"`
	Timestamp   string `json:"timestamp"`
	Date        string `json:"date"`
	MonthKey    string `json:"month_key"`
	Amount      string `json:"amount"`
	Category    string `json:"category"`
	Merchant    string `json:"merchant"`
	Description string `json:"description"`
	Account     string `json:"account"`
	Status      string `json:"status"`
	Reference   string `json:"reference,omitempty"`
	Notes       string `json:"notes,omitempty"`
	Provider    string `json:"provider,omitempty"`
	Source      string `json:"source,omitempty"`
}

func newTransactionView(t core.Transaction) transactionView {
	return transactionView{
		ID:          t.ID,
		Timestamp:   t.Timestamp.Format(time.RFC3339),
		Date:        t.Timestamp.Format(core.DayLayout),
		MonthKey:    t.Month(),
		Amount:      core.FormatAmount(t.Amount),
		Category:    t.CategoryOrDefault(),
		Merchant:    t.Merchant,
		Description: t.Description,
		Account:     t.Account,
		Status:      t.Status.String(),
		Reference:   t.Reference,
		Notes:       t.Notes,
		Provider:    t.Provider,
		Source:      t.Source,
	}
}

func newTransactionViews(ts []core.Transaction) []transactionView {
	out := make([]transactionView, len(ts))
	for i, t := range ts {
		out[i] = newTransactionView(t)
	}
	return out
}

type categoryView struct {
	Category string `json:"category"`
	Total    string `json:"total"`
}

func newCategoryViews(cs []core.CategoryTotal) []categoryView {
	out := make([]categoryView, len(cs))
	for i, c := range cs {
		out[i] = categoryView{Category: c.Category, Total: core.FormatAmount(c.Total)}
	}
	return out
}

type monthView struct {
	MonthKey      string         `json:"month_key"`
	TotalIncome   string         `json:"total_income"`
	TotalExpenses string         `json:"total_expenses"`
	NetAmount     string         `json:"net_amount"`
	Categories    []categoryView `json:"categories"`
}

func newMonthView(m core.MonthlyAggregate) monthView {
	return monthView{
		MonthKey:      m.MonthKey,
		TotalIncome:   core.FormatAmount(m.TotalIncome),
		TotalExpenses: core.FormatAmount(m.TotalExpenses),
		NetAmount:     core.FormatAmount(m.NetAmount),
		Categories:    newCategoryViews(m.CategoryTotals),
	}
}

func newMonthViews(ms []core.MonthlyAggregate) []monthView {
	out := make([]monthView, len(ms))
	for i, m := range ms {
		out[i] = newMonthView(m)
	}
	return out
}

type dailyView struct {
	Date   string `json:"date"`
	Amount string `json:"amount"`
}

func newDailyViews(ps []core.DailyPoint) []dailyView {
	out := make([]dailyView, len(ps))
	for i, p := range ps {
		out[i] = dailyView{Date: p.Date, Amount: core.FormatAmount(p.Amount)}
	}
	return out
}

type totalsView struct {
	Count    int    `json:"count"`
	Income   string `json:"income"`
	Expenses string `json:"expenses"`
	Net      string `json:"net"`
}

func newTotalsView(t core.Totals) totalsView {
	return totalsView{
		Count:    t.Count,
		Income:   core.FormatAmount(t.Income),
		Expenses: core.FormatAmount(t.Expenses),
		Net:      core.FormatAmount(t.Net),
	}
}

type dashboardView struct {
	Months     []monthView    `json:"months"`
	Categories []categoryView `json:"categories"`
	Daily      []dailyView    `json:"daily"`
	Totals     totalsView     `json:"totals"`
}

func newDashboardView(d services.Dashboard) dashboardView {
	return dashboardView{
		Months:     newMonthViews(d.Months),
		Categories: newCategoryViews(d.Categories),
		Daily:      newDailyViews(d.Daily),
		Totals:     newTotalsView(d.Totals),
	}
}

type deltaView struct {
	Absolute string       `json:"absolute"`
	Percent  core.Percent `json:"percent"`
}

type categoryDeltaView struct {
	Category string       `json:"category"`
	Older    string       `json:"older"`
	Newer    string       `json:"newer"`
	Absolute string       `json:"absolute"`
	Percent  core.Percent `json:"percent"`
}

type comparisonView struct {
	Older      monthView           `json:"older"`
	Newer      monthView           `json:"newer"`
	Total      deltaView           `json:"total"`
	Categories []categoryDeltaView `json:"categories"`
}

func newComparisonView(c core.ComparisonResult) comparisonView {
	deltas := make([]categoryDeltaView, len(c.CategoryDeltas))
	for i, d := range c.CategoryDeltas {
		deltas[i] = categoryDeltaView{
			Category: d.Category,
			Older:    core.FormatAmount(d.Baseline),
			Newer:    core.FormatAmount(d.Comparand),
			Absolute: core.FormatAmount(d.Absolute),
			Percent:  d.Percent,
		}
	}
	return comparisonView{
		Older:      newMonthView(c.Baseline),
		Newer:      newMonthView(c.Comparand),
		Total:      deltaView{Absolute: core.FormatAmount(c.TotalDelta.Absolute), Percent: c.TotalDelta.Percent},
		Categories: deltas,
	}
}

type rowErrorView struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

func newRowErrorViews(errs []core.RowError) []rowErrorView {
	out := make([]rowErrorView, len(errs))
	for i, e := range errs {
		out[i] = rowErrorView{Row: e.Row, Reason: e.Reason()}
	}
	return out
}

type importView struct {
	Source   string         `json:"source"`
	Rows     int            `json:"rows"`
	Imported int            `json:"imported"`
	Skipped  int            `json:"skipped"`
	Rejected int            `json:"rejected"`
	Errors   []rowErrorView `json:"errors"`
	Months   []string       `json:"months"`
}

func newImportView(r importer.Result) importView {
	return importView{
		Source:   r.Source,
		Rows:     r.Rows,
		Imported: r.Imported,
		Skipped:  r.Skipped,
		Rejected: r.Rejected(),
		Errors:   newRowErrorViews(r.Errors),
		Months:   nonNil(r.Months),
	}
}

type syncView struct {
	From     string         `json:"from"`
	To       string         `json:"to"`
	Stored   int            `json:"stored"`
	Rejected int            `json:"rejected"`
	Errors   []rowErrorView `json:"errors"`
	Months   []string       `json:"months"`
}

func newSyncView(r services.SyncResult) syncView {
	return syncView{
		From:     r.From.Format(time.RFC3339),
		To:       r.To.Format(time.RFC3339),
		Stored:   r.Stored,
		Rejected: len(r.Rejected),
		Errors:   newRowErrorViews(r.Rejected),
		Months:   nonNil(r.Months),
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
