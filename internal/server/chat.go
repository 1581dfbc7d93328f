package server

import (
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	core "github.com/mohammad-safakhou/concierge/internal/agent/core"
	"github.com/mohammad-safakhou/concierge/internal/runtime"
	"github.com/mohammad-safakhou/concierge/internal/session"
	"github.com/mohammad-safakhou/concierge/internal/store"
)

// ChatHandler drives routing cycles over HTTP. Store may be nil when
// Postgres persistence is not configured; the live session memory alone
// then carries the conversation.
type ChatHandler struct {
	Orch     *core.Orchestrator
	Sessions session.Store
	Store    *store.Store
	TTL      time.Duration
	Logger   *log.Logger
}

func (h *ChatHandler) Register(api *echo.Group, secret []byte) {
	chat := api.Group("/chat")
	chat.Use(runtime.EchoAuthMiddleware(secret))
	chat.POST("", h.chat)
	chat.POST("/approve", h.approve)
	chat.POST("/reject", h.reject)

	sessions := api.Group("/sessions")
	sessions.Use(runtime.EchoAuthMiddleware(secret))
	sessions.GET("/:id/transcript", h.transcript)
	sessions.GET("/:id/search", h.search)
	sessions.GET("/:id/history", h.history)
	sessions.POST("/:id/auto_approve", h.autoApprove)
}

func (h *ChatHandler) chat(c echo.Context) error {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Message) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message required")
	}

	sess, err := h.Sessions.EnsureSession(req.SessionID, h.TTL)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if _, held := sess.Pending(); held {
		return echo.NewHTTPError(http.StatusConflict, "an answer is awaiting approval; approve or reject it first")
	}
	if req.AutoApprove != nil {
		sess.SetAutoApprove(*req.AutoApprove)
	}

	result, err := h.Orch.HandleMessage(c.Request().Context(), sess, req.Message)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}

	h.persistCycle(c, sess.ID(), result, req.Message)

	return c.JSON(http.StatusOK, ChatResponse{
		SessionID:       sess.ID(),
		CycleID:         result.CycleID,
		Answer:          result.Answer,
		PendingApproval: result.PendingApproval,
		Intent:          result.Intent,
		ToolsUsed:       result.ToolsUsed,
		ProcessingMS:    result.ProcessingTime.Milliseconds(),
	})
}

// persistCycle mirrors the cycle into the durable history log. Failures
// are logged and swallowed so a storage hiccup never loses the answer.
func (h *ChatHandler) persistCycle(c echo.Context, sessionID string, result core.CycleResult, message string) {
	if h.Store == nil {
		return
	}
	status := store.TurnStatusApproved
	if result.PendingApproval {
		status = store.TurnStatusPending
	}
	userID, _ := runtime.SubjectFromContext(c.Request().Context())
	now := time.Now()
	turns := []core.Turn{
		{ID: uuid.NewString(), Role: core.RoleUser, Content: message, CreatedAt: now},
		{ID: uuid.NewString(), Role: core.RoleAssistant, Content: stripApproval(result.Answer), CreatedAt: now.Add(time.Millisecond)},
	}
	if err := h.Store.AppendTurns(c.Request().Context(), sessionID, userID, result.CycleID, turns, status); err != nil {
		h.Logger.Printf("persisting cycle %s: %v", result.CycleID, err)
	}
}

func (h *ChatHandler) approve(c echo.Context) error {
	var req ApproveRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	sess, err := h.Sessions.GetSession(req.SessionID)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	pending, held := sess.Pending()
	if !held {
		return echo.NewHTTPError(http.StatusConflict, "nothing awaiting approval")
	}

	correction := strings.TrimSpace(req.Correction)
	committed := make([]core.Turn, 0, len(pending))
	for _, t := range pending {
		if t.Role == core.RoleAssistant {
			if correction != "" {
				t.Content = correction
			} else {
				t.Content = stripApproval(t.Content)
			}
		}
		committed = append(committed, t)
	}
	sess.Reject()
	sess.CommitApproved(committed)

	if h.Store != nil {
		ctx := c.Request().Context()
		if correction != "" {
			if err := h.Store.EditPendingAnswer(ctx, sess.ID(), correction); err != nil {
				h.Logger.Printf("marking correction for session %s: %v", sess.ID(), err)
			}
		}
		if err := h.Store.ResolvePending(ctx, sess.ID(), store.TurnStatusApproved); err != nil {
			h.Logger.Printf("approving history for session %s: %v", sess.ID(), err)
		}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"approved": len(committed), "corrected": correction != ""})
}

func (h *ChatHandler) reject(c echo.Context) error {
	var req RejectRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	sess, err := h.Sessions.GetSession(req.SessionID)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	discarded := sess.Reject()
	if len(discarded) == 0 {
		return echo.NewHTTPError(http.StatusConflict, "nothing awaiting approval")
	}
	if h.Store != nil {
		if err := h.Store.ResolvePending(c.Request().Context(), sess.ID(), store.TurnStatusRejected); err != nil {
			h.Logger.Printf("rejecting history for session %s: %v", sess.ID(), err)
		}
	}
	return c.JSON(http.StatusOK, map[string]int{"rejected": len(discarded)})
}

func (h *ChatHandler) transcript(c echo.Context) error {
	sess, err := h.Sessions.GetSession(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	resp := TranscriptResponse{SessionID: sess.ID(), Turns: toTurnViews(sess.Raw())}
	if pending, held := sess.Pending(); held {
		resp.Pending = toTurnViews(pending)
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *ChatHandler) search(c echo.Context) error {
	sess, err := h.Sessions.GetSession(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	q := c.QueryParam("q")
	if strings.TrimSpace(q) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "q required")
	}
	k, _ := strconv.Atoi(c.QueryParam("k"))
	hits, err := sess.SearchTranscript(q, k)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	resp := SearchResponse{SessionID: sess.ID(), Query: q}
	for _, hit := range hits {
		resp.Hits = append(resp.Hits, SearchHit{TurnID: hit.TurnID, Role: hit.Role, Snippet: hit.Snippet, Score: hit.Score, Rank: hit.Rank})
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *ChatHandler) history(c echo.Context) error {
	if h.Store == nil {
		return echo.NewHTTPError(http.StatusNotImplemented, "durable history not configured")
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	records, err := h.Store.ListTurns(c.Request().Context(), c.Param("id"), limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	views := make([]TurnView, 0, len(records))
	for _, rec := range records {
		views = append(views, TurnView{
			ID:        rec.ID,
			Role:      rec.Role,
			Content:   rec.Content,
			Status:    rec.Status,
			CreatedAt: rec.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return c.JSON(http.StatusOK, TranscriptResponse{SessionID: c.Param("id"), Turns: views})
}

func (h *ChatHandler) autoApprove(c echo.Context) error {
	var req AutoApproveRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	sess, err := h.Sessions.GetSession(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	sess.SetAutoApprove(req.Enabled)
	return c.JSON(http.StatusOK, map[string]bool{"auto_approve": req.Enabled})
}

func toTurnViews(turns []core.Turn) []TurnView {
	views := make([]TurnView, 0, len(turns))
	for _, t := range turns {
		view := TurnView{ID: t.ID, Role: string(t.Role), Content: t.Content}
		if !t.CreatedAt.IsZero() {
			view.CreatedAt = t.CreatedAt.UTC().Format(time.RFC3339)
		}
		views = append(views, view)
	}
	return views
}

func stripApproval(s string) string {
	return strings.TrimSuffix(s, core.ApprovalSuffix)
}
