package api

import (
	"io"

	"github.com/gin-gonic/gin"

	"verax/internal/store"
)

// eventBuffer is how many changes a slow client may lag behind before changes are dropped.
const eventBuffer = 64

// handleInvoiceEvents streams invoice changes as server-sent events until the client leaves.
func (s *Server) handleInvoiceEvents(c *gin.Context) {
	ctx := c.Request.Context()
	filter := store.InvoiceFilter{
		AnalystUID: c.Query("analystUid"),
		Issuer:     c.Query("issuer"),
	}

	events := make(chan store.InvoiceChange, eventBuffer)
	sub, err := s.deps.Store.WatchInvoices(ctx, filter, func(change store.InvoiceChange) {
		select {
		case events <- change:
		default:
			s.log.Warn().Str("invoice_id", change.Invoice.ID).Msg("Event stream lagging, change dropped")
		}
	})
	if err != nil {
		respondError(c, err)
		return
	}
	defer sub.Stop()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent("ready", gin.H{"analystUid": filter.AnalystUID, "issuer": filter.Issuer})
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case change := <-events:
			c.SSEvent(string(change.Kind), change)
			return true
		}
	})
}
