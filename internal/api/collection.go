package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type previewRequest struct {
	Issuer string `json:"issuer" binding:"required"`
	Text   string `json:"text"`
}

type confirmRequest struct {
	InvoiceIDs     []string `json:"invoiceIds" binding:"required,min=1"`
	CollectionDate string   `json:"collectionDate" binding:"required"`
}

func (s *Server) handleCollectionPreview(c *gin.Context) {
	var body previewRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "issuer", "is required")
		return
	}
	preview, err := s.deps.Collector.Preview(c.Request.Context(), body.Issuer, body.Text)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"preview":    preview,
		"invoiceIds": preview.ToChargeIDs(),
	})
}

func (s *Server) handleCollectionConfirm(c *gin.Context) {
	var body confirmRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "", "invoiceIds and collectionDate are required")
		return
	}
	result, err := s.deps.Collector.Confirm(c.Request.Context(), body.InvoiceIDs, body.CollectionDate)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
