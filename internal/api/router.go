package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jspenaq/dataseed/internal/ingest"
	"github.com/jspenaq/dataseed/internal/ranker"
	"github.com/jspenaq/dataseed/internal/scheduler"
	"github.com/jspenaq/dataseed/internal/storage"
)

// 统计与趋势查询允许的时间窗枚举
var windows = map[string]time.Duration{
	"1h":  1 * time.Hour,
	"24h": 24 * time.Hour,
	"7d":  7 * 24 * time.Hour,
	"30d": 30 * 24 * time.Hour,
}

type Server struct {
	store  *storage.Store
	ranker *ranker.Ranker
	sched  *scheduler.Scheduler
}

func NewServer(store *storage.Store, rk *ranker.Ranker, sched *scheduler.Scheduler) *Server {
	return &Server{store: store, ranker: rk, sched: sched}
}

func (s *Server) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", s.health)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/items", s.listItems)
		v1.GET("/items/cursor", s.listItemsCursor)
		v1.GET("/items/trending", s.trending)
		v1.GET("/items/stats", s.stats)
		v1.GET("/runs", s.listRuns)
		v1.POST("/ingest/:source", s.triggerIngest)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func parseLimit(c *gin.Context, def int) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(def)))
	if err != nil || limit <= 0 {
		return def
	}
	return limit
}

func (s *Server) listItems(c *gin.Context) {
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}

	q := storage.ItemQuery{
		Source: c.Query("source"),
		Search: c.Query("q"),
		Limit:  parseLimit(c, 20),
		Offset: offset,
	}

	items, total, err := s.store.ListItems(c.Request.Context(), q)
	if err != nil {
		internalError(c)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    "ok",
		"message": "success",
		"data": gin.H{
			"items":  items,
			"total":  total,
			"limit":  q.Limit,
			"offset": q.Offset,
		},
	})
}

func (s *Server) listItemsCursor(c *gin.Context) {
	q := storage.ItemQuery{
		Source: c.Query("source"),
		Search: c.Query("q"),
		Limit:  parseLimit(c, 20),
	}

	items, next, err := s.store.ListItemsCursor(c.Request.Context(), q, c.Query("cursor"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "bad_cursor",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    "ok",
		"message": "success",
		"data": gin.H{
			"items":      items,
			"limit":      q.Limit,
			"nextCursor": next,
		},
	})
}

func (s *Server) trending(c *gin.Context) {
	window := c.DefaultQuery("window", "24h")
	dur, ok := windows[window]
	if !ok {
		badWindow(c, window)
		return
	}

	useDecay := c.DefaultQuery("hot", "false") == "true"

	items, err := s.ranker.Trending(
		c.Request.Context(),
		window,
		dur,
		c.Query("source"),
		parseLimit(c, 20),
		useDecay,
	)
	if err != nil {
		internalError(c)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    "ok",
		"message": "success",
		"data":    items,
	})
}

func (s *Server) stats(c *gin.Context) {
	window := c.DefaultQuery("window", "24h")
	dur, ok := windows[window]
	if !ok {
		badWindow(c, window)
		return
	}

	stats, err := s.store.GetRunStats(c.Request.Context(), c.Query("source"), window, dur)
	if err != nil {
		internalError(c)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    "ok",
		"message": "success",
		"data":    stats,
	})
}

func (s *Server) listRuns(c *gin.Context) {
	runs, err := s.store.ListRuns(c.Request.Context(), c.Query("source"), parseLimit(c, 50))
	if err != nil {
		internalError(c)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    "ok",
		"message": "success",
		"data":    runs,
	})
}

// triggerIngest 手动触发某个源立刻跑一轮；上一轮未结束时返回 409
func (s *Server) triggerIngest(c *gin.Context) {
	if s.sched == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"code":    "no_scheduler",
			"message": "ingestion scheduler not available",
		})
		return
	}

	run, err := s.sched.RunSource(c.Param("source"))
	if err != nil {
		if errors.Is(err, scheduler.ErrAlreadyRunning) || errors.Is(err, ingest.ErrRunInProgress) {
			c.JSON(http.StatusConflict, gin.H{
				"code":    "already_running",
				"message": err.Error(),
			})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "ingest_failed",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    "ok",
		"message": "success",
		"data":    run,
	})
}

func badWindow(c *gin.Context, window string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"code":    "bad_window",
		"message": "unsupported window " + window + " (use 1h/24h/7d/30d)",
	})
}

func internalError(c *gin.Context) {
	c.JSON(http.StatusInternalServerError, gin.H{
		"code":    "internal_error",
		"message": "internal server error",
	})
}
