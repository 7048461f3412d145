package api

import (
	"net/http"
	"sort"
	"strconv"

	"github.com/gin-gonic/gin"

	"verax/internal/invoice"
	"verax/internal/store"
	"verax/pkg/models"
)

func invoiceFilter(c *gin.Context) store.InvoiceFilter {
	return store.InvoiceFilter{
		Issuer:           c.Query("issuer"),
		AnalystUID:       c.Query("analystUid"),
		PaymentStatus:    c.Query("estadoPago"),
		CollectionStatus: c.Query("estadoCobro"),
		LinkedRequestID:  c.Query("linkedPayoutRequestId"),
	}
}

func (s *Server) views(invs []models.Invoice) []invoice.View {
	now := s.deps.Now()
	views := make([]invoice.View, 0, len(invs))
	for _, inv := range invs {
		views = append(views, invoice.ViewOf(inv, now))
	}
	return views
}

func (s *Server) handleListInvoices(c *gin.Context) {
	invs, err := s.deps.Store.ListInvoices(c.Request.Context(), invoiceFilter(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"invoices": s.views(invs)})
}

func (s *Server) handleOverdueInvoices(c *gin.Context) {
	ctx := c.Request.Context()

	configured, err := s.deps.Store.InsurerTerms(ctx)
	if err != nil {
		respondError(c, err)
		return
	}
	terms := invoice.NewTerms(configured, s.deps.DefaultTerm)

	filter := invoiceFilter(c)
	filter.CollectionStatus = models.CollectionNotCollected
	invs, err := s.deps.Store.ListInvoices(ctx, filter)
	if err != nil {
		respondError(c, err)
		return
	}

	now := s.deps.Now()
	var overdue []models.Invoice
	for _, inv := range invs {
		if invoice.IsOverdue(inv, terms, now) {
			overdue = append(overdue, inv)
		}
	}
	views := s.views(overdue)
	sort.SliceStable(views, func(i, j int) bool {
		return views[i].DaysSinceIssuance > views[j].DaysSinceIssuance
	})
	c.JSON(http.StatusOK, gin.H{"invoices": views})
}

func (s *Server) handleGetInvoice(c *gin.Context) {
	inv, err := s.deps.Store.GetInvoice(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, invoice.ViewOf(inv, s.deps.Now()))
}

// handlePatchInvoice applies a staff edit. A null value removes the field. Passing
// ?version= makes the edit fail with 409 if someone else changed the invoice meanwhile.
func (s *Server) handlePatchInvoice(c *gin.Context) {
	var body map[string]interface{}
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "", "body must be a JSON object")
		return
	}
	if len(body) == 0 {
		badRequest(c, "", "no fields to update")
		return
	}

	patch := make(store.Patch, len(body))
	for field, value := range body {
		if !invoice.IsEditable(field) {
			badRequest(c, field, "field cannot be edited")
			return
		}
		if value == nil {
			patch[field] = store.Remove
			continue
		}
		patch[field] = value
	}

	expected := store.AnyVersion
	if v := c.Query("version"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			badRequest(c, "version", "version must be an integer")
			return
		}
		expected = n
	}

	inv, err := s.deps.Store.UpdateInvoiceFields(c.Request.Context(), c.Param("id"), expected, patch)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, invoice.ViewOf(inv, s.deps.Now()))
}

func (s *Server) handleDeleteInvoice(c *gin.Context) {
	if err := s.deps.Store.DeleteInvoice(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleEligible(c *gin.Context) {
	views, err := s.deps.Payouts.Eligible(c.Request.Context(), c.Param("uid"))
	if err != nil {
		respondError(c, err)
		return
	}
	if views == nil {
		views = []invoice.View{}
	}
	c.JSON(http.StatusOK, gin.H{"invoices": views})
}
