package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"verax/internal/storage"
)

// handleUploadLiquidation stores an insurer's liquidation order PDF. Nothing else is recorded.
func (s *Server) handleUploadLiquidation(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)

	insurer := strings.TrimSpace(c.PostForm("insurer"))
	if insurer == "" {
		badRequest(c, "insurer", "is required")
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "file", "a PDF file is required")
		return
	}
	if !storage.IsPDF(fh.Header.Get("Content-Type")) {
		badRequest(c, "file", "only PDF files are accepted")
		return
	}
	f, err := fh.Open()
	if err != nil {
		respondError(c, err)
		return
	}
	defer f.Close()

	path := storage.LiquidationPath(insurer, fh.Filename, s.deps.Now())
	obj, err := s.deps.Uploader.Upload(c.Request.Context(), path, storage.ContentTypePDF, f)
	if err != nil {
		respondError(c, err)
		return
	}
	s.log.Info().Str("insurer", insurer).Str("path", obj.Path).Int64("size", obj.Size).Msg("Liquidation order stored")
	c.JSON(http.StatusCreated, obj)
}
