package server

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/scoutd/scoutd/internal/store"
)

func sanitizeBase(bp string) string {
	bp = strings.TrimSpace(bp)
	if bp == "" || bp == "/" {
		return ""
	}
	if !strings.HasPrefix(bp, "/") {
		bp = "/" + bp
	}
	bp = strings.TrimRight(bp, "/")
	return bp
}

// runResp flattens the sql.Null* columns of a stored run for JSON.
type runResp struct {
	ID           string          `json:"id"`
	Status       string          `json:"status"`
	PID          int             `json:"pid,omitempty"`
	Params       json.RawMessage `json:"params,omitempty"`
	StartedAt    time.Time       `json:"started_at"`
	FinishedAt   *time.Time      `json:"finished_at,omitempty"`
	LinksChecked int64           `json:"links_checked"`
	ItemsFound   int64           `json:"items_found"`
	Errors       json.RawMessage `json:"errors,omitempty"`
	Reason       string          `json:"reason,omitempty"`
}

func runView(r store.RunRow) runResp {
	v := runResp{
		ID:           r.ID,
		Status:       r.Status,
		PID:          r.PID,
		StartedAt:    r.StartedAt,
		LinksChecked: r.LinksChecked,
		ItemsFound:   r.ItemsFound,
	}
	if r.ParamsJSON != "" {
		v.Params = json.RawMessage(r.ParamsJSON)
	}
	if r.ErrorsJSON != "" {
		v.Errors = json.RawMessage(r.ErrorsJSON)
	}
	if r.FinishedAt.Valid {
		t := r.FinishedAt.Time
		v.FinishedAt = &t
	}
	if r.Reason.Valid {
		v.Reason = r.Reason.String
	}
	return v
}

func runViews(rows []store.RunRow) []runResp {
	out := make([]runResp, len(rows))
	for i, r := range rows {
		out[i] = runView(r)
	}
	return out
}

func writeJSON(c *gin.Context, code int, v any) {
	c.Header("Content-Type", "application/json")
	c.Status(code)
	_ = json.NewEncoder(c.Writer).Encode(v)
}
