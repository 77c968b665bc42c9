package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sortdesk/mailpilot/internal/model"
)

type fakeSelector struct {
	queue       *model.Queue
	err         error
	gotUserID   int64
	gotLimit    int
	gotInclude  bool
	reviewed    []int64
	reviewedErr error
}

func (f *fakeSelector) SelectQueue(_ context.Context, userID int64, limit int, includeReviewed bool) (*model.Queue, error) {
	f.gotUserID = userID
	f.gotLimit = limit
	f.gotInclude = includeReviewed
	return f.queue, f.err
}

func (f *fakeSelector) MarkReviewed(_ context.Context, userID, emailID int64) error {
	f.reviewed = append(f.reviewed, emailID)
	return f.reviewedErr
}

func queueRouter(sel *fakeSelector) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewQueueHandler(sel, zap.NewNop())
	r.GET("/review-queue", h.GetReviewQueue)
	r.POST("/emails/:id/reviewed", h.MarkReviewed)
	return r
}

func TestGetReviewQueue(t *testing.T) {
	sel := &fakeSelector{queue: &model.Queue{
		Items: []model.ReviewQueueEntry{
			{EmailID: 9, Subject: "invoice", SignalStrength: model.SignalHigh, ReplyWorthiness: model.ReplyNeeded},
		},
		Stats:        model.QueueStats{HighSignal: 1, NeedsReply: 1, Unread: 1},
		TotalInQueue: 14,
		GeneratedAt:  time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC),
	}}
	r := queueRouter(sel)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/review-queue?user_id=7&limit=5&include_reviewed=true", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if sel.gotUserID != 7 || sel.gotLimit != 5 || !sel.gotInclude {
		t.Fatalf("selector got user=%d limit=%d include=%v", sel.gotUserID, sel.gotLimit, sel.gotInclude)
	}

	var body struct {
		Items []struct {
			EmailID        int64  `json:"emailId"`
			SignalStrength string `json:"signalStrength"`
		} `json:"items"`
		Stats        model.QueueStats `json:"stats"`
		TotalInQueue int              `json:"totalInQueue"`
		LastUpdated  string           `json:"lastUpdated"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Items) != 1 || body.Items[0].EmailID != 9 || body.Items[0].SignalStrength != "high" {
		t.Fatalf("items = %+v", body.Items)
	}
	if body.TotalInQueue != 14 || body.Stats.HighSignal != 1 {
		t.Fatalf("body = %+v", body)
	}
	if body.LastUpdated != "2026-08-20T09:00:00Z" {
		t.Fatalf("lastUpdated = %q", body.LastUpdated)
	}
}

func TestGetReviewQueueBadUserID(t *testing.T) {
	r := queueRouter(&fakeSelector{})
	for _, q := range []string{"", "user_id=abc", "user_id=0"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/review-queue?"+q, nil))
		if w.Code != http.StatusBadRequest {
			t.Fatalf("query %q: status = %d, want 400", q, w.Code)
		}
	}
}

func TestMarkReviewed(t *testing.T) {
	sel := &fakeSelector{}
	r := queueRouter(sel)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/emails/9/reviewed", strings.NewReader(`{"user_id":7}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if len(sel.reviewed) != 1 || sel.reviewed[0] != 9 {
		t.Fatalf("reviewed = %v", sel.reviewed)
	}
}

func TestMarkReviewedBadRequest(t *testing.T) {
	r := queueRouter(&fakeSelector{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/emails/0/reviewed", strings.NewReader(`{"user_id":7}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for bad email id", w.Code)
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/emails/9/reviewed", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for missing user_id", w.Code)
	}
}
