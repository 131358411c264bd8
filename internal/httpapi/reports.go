package httpapi

import (
	"net/http"
	"time"

	"eldercare-platform/internal/reporting"

	"github.com/gin-gonic/gin"
)

// parseRange reads from/to as RFC3339 query params; both default to the
// last 30 days.
func (h Handlers) parseRange(c *gin.Context) (reporting.TimeRange, bool) {
	to := h.now()
	from := to.AddDate(0, 0, -30)
	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "from must be RFC3339"})
			return reporting.TimeRange{}, false
		}
		from = t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "to must be RFC3339"})
			return reporting.TimeRange{}, false
		}
		to = t
	}
	return reporting.TimeRange{From: from, To: to}, true
}

// CallsSummary aggregates calls in range, optionally for a set of
// appointments (?appointment_id=a&appointment_id=b).
// RBAC: doctor or admin.
func (h Handlers) CallsSummary(c *gin.Context) {
	if h.Reports == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reporting not configured"})
		return
	}
	rng, ok := h.parseRange(c)
	if !ok {
		return
	}
	out, err := h.Reports.CallsSummary(c.Request.Context(), reporting.CallsSummaryRequest{
		AppointmentIDs: c.QueryArray("appointment_id"),
		Range:          rng,
	})
	if err != nil {
		abortErr(c, err, "calls summary")
		return
	}
	c.JSON(http.StatusOK, out)
}

// StarterBreakdown groups calls in range by starting user.
// RBAC: admin.
func (h Handlers) StarterBreakdown(c *gin.Context) {
	if h.Reports == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reporting not configured"})
		return
	}
	rng, ok := h.parseRange(c)
	if !ok {
		return
	}
	out, err := h.Reports.StarterBreakdown(c.Request.Context(), reporting.StarterBreakdownRequest{Range: rng})
	if err != nil {
		abortErr(c, err, "starter breakdown")
		return
	}
	c.JSON(http.StatusOK, gin.H{"starters": out})
}
