package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/Luismorlan/campusfeed/broker"
	"github.com/Luismorlan/campusfeed/feed"
	"github.com/Luismorlan/campusfeed/ledger"
	"github.com/Luismorlan/campusfeed/model"
	"github.com/Luismorlan/campusfeed/server/middlewares"
	"github.com/Luismorlan/campusfeed/stats"
	"github.com/Luismorlan/campusfeed/store"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
)

// Handler serves the feed api. All routes expect an identity on the context.
type Handler struct {
	Feed   *feed.Feed
	Ledger *ledger.Ledger
	Broker *broker.Broker
	Store  store.Store

	// Websocket keepalive, defaults to 30s.
	PingInterval time.Duration
}

type postInput struct {
	Body string `json:"body"`
}

type editInput struct {
	Body string `json:"body"`
	// Version the client last saw, 0 to overwrite unconditionally.
	IfVersion int64 `json:"ifVersion"`
}

type pinInput struct {
	Pinned bool `json:"pinned"`
}

func bindJSON(c *gin.Context, v interface{}) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		abortWithError(c, errors.Wrap(model.ErrInvalidArgument, err.Error()))
		return false
	}
	return true
}

func (h *Handler) respondPost(c *gin.Context, status int, p *model.Post) {
	view, err := NewPostView(p, middlewares.GetIdentity(c).UserId)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(status, view)
}

// POST /api/posts
func (h *Handler) CreatePost(c *gin.Context) {
	var in postInput
	if !bindJSON(c, &in) {
		return
	}
	p, err := h.Feed.Create(c.Request.Context(), middlewares.GetIdentity(c), in.Body)
	if err != nil {
		abortWithError(c, err)
		return
	}
	h.respondPost(c, http.StatusCreated, p)
}

// POST /api/posts/:id/quote
func (h *Handler) QuotePost(c *gin.Context) {
	var in postInput
	if c.Request.ContentLength != 0 && !bindJSON(c, &in) {
		return
	}
	p, err := h.Feed.Quote(c.Request.Context(), middlewares.GetIdentity(c), c.Param("id"), in.Body)
	if err != nil {
		abortWithError(c, err)
		return
	}
	h.respondPost(c, http.StatusCreated, p)
}

// GET /api/posts?limit=&cursor=
func (h *Handler) ListPosts(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		var err error
		if limit, err = strconv.Atoi(raw); err != nil {
			abortWithError(c, errors.Wrapf(model.ErrInvalidArgument, "limit %q is not a number", raw))
			return
		}
	}
	page, err := h.Feed.List(c.Request.Context(), limit, c.Query("cursor"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	posts, err := NewPostViews(page.Posts, middlewares.GetIdentity(c).UserId)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, &PageView{Posts: posts, NextCursor: page.NextCursor})
}

// GET /api/posts/:id
func (h *Handler) GetPost(c *gin.Context) {
	p, err := h.Feed.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	h.respondPost(c, http.StatusOK, p)
}

// PATCH /api/posts/:id
func (h *Handler) EditPost(c *gin.Context) {
	var in editInput
	if !bindJSON(c, &in) {
		return
	}
	p, err := h.Feed.Edit(c.Request.Context(), middlewares.GetIdentity(c), c.Param("id"), in.Body, in.IfVersion)
	if err != nil {
		abortWithError(c, err)
		return
	}
	h.respondPost(c, http.StatusOK, p)
}

// DELETE /api/posts/:id
func (h *Handler) DeletePost(c *gin.Context) {
	if err := h.Feed.Delete(c.Request.Context(), middlewares.GetIdentity(c), c.Param("id")); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// POST /api/posts/:id/pin
func (h *Handler) PinPost(c *gin.Context) {
	in := pinInput{Pinned: true}
	if c.Request.ContentLength != 0 && !bindJSON(c, &in) {
		return
	}
	p, err := h.Feed.SetPinned(c.Request.Context(), middlewares.GetIdentity(c), c.Param("id"), in.Pinned)
	if err != nil {
		abortWithError(c, err)
		return
	}
	h.respondPost(c, http.StatusOK, p)
}

// POST /api/posts/:id/like
func (h *Handler) ToggleLike(c *gin.Context) {
	res, err := h.Ledger.ToggleLike(c.Request.Context(), middlewares.GetIdentity(c), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// POST /api/posts/:id/repost
func (h *Handler) ToggleRepost(c *gin.Context) {
	res, err := h.Ledger.ToggleRepost(c.Request.Context(), middlewares.GetIdentity(c), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// POST /api/posts/:id/share
func (h *Handler) IncrementShare(c *gin.Context) {
	res, err := h.Ledger.IncrementShare(c.Request.Context(), middlewares.GetIdentity(c), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// GET /api/stats
func (h *Handler) Stats(c *gin.Context) {
	totals, err := stats.FullTotals(c.Request.Context(), h.Store)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, totals)
}
