package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"verax/internal/payout"
	"verax/internal/store"
	"verax/pkg/models"
)

// maxUploadBytes bounds receipt and liquidation uploads.
const maxUploadBytes = 20 << 20

type noteRequest struct {
	Note string `json:"note"`
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

type paidRequest struct {
	PaidDate string `json:"paidDate"`
}

func (s *Server) handleListPayouts(c *gin.Context) {
	reqs, err := s.deps.Payouts.List(c.Request.Context(), store.PayoutFilter{
		AnalystUID: c.Query("analystUid"),
		Status:     c.Query("status"),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	if reqs == nil {
		reqs = []models.PayoutRequest{}
	}
	c.JSON(http.StatusOK, gin.H{"requests": reqs})
}

func (s *Server) handleGetPayout(c *gin.Context) {
	req, err := s.deps.Payouts.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

func (s *Server) handleSubmitPayout(c *gin.Context) {
	var in payout.SubmitInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "", err.Error())
		return
	}

	result, err := s.deps.Payouts.Submit(c.Request.Context(), in)
	if errors.Is(err, payout.ErrNothingEligible) {
		// the caller needs the per-invoice reasons
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{
			"error":    payout.ErrNothingEligible.Error(),
			"rejected": result.Rejected,
		})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (s *Server) handleApprovePayout(c *gin.Context) {
	var body noteRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			badRequest(c, "", "body must be a JSON object")
			return
		}
	}
	req, err := s.deps.Payouts.Approve(c.Request.Context(), c.Param("id"), body.Note)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

func (s *Server) handleRejectPayout(c *gin.Context) {
	var body rejectRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "reason", "is required")
		return
	}
	req, err := s.deps.Payouts.Reject(c.Request.Context(), c.Param("id"), body.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

func (s *Server) handleMarkPaid(c *gin.Context) {
	var body paidRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "paidDate", "is required")
		return
	}
	req, err := s.deps.Payouts.MarkPaid(c.Request.Context(), c.Param("id"), body.PaidDate)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

// handleUploadReceipt takes a multipart form with the analyst uid and the PDF under "file".
func (s *Server) handleUploadReceipt(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)

	fh, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "file", "a PDF file is required")
		return
	}
	f, err := fh.Open()
	if err != nil {
		respondError(c, err)
		return
	}
	defer f.Close()

	req, err := s.deps.Payouts.UploadReceipt(c.Request.Context(), payout.ReceiptInput{
		RequestID:   c.Param("id"),
		AnalystUID:  c.PostForm("analystUid"),
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Body:        f,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}
