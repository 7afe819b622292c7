package httpapi

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"myblog/internal/blog"
	"myblog/internal/dbsession"
	"myblog/internal/shared"
)

// Handler - HTTP-обработчики блога.
type Handler struct {
	svc       *blog.Service
	log       *slog.Logger
	poolStats func() (any, bool)
}

// NewHandler создаёт обработчики поверх сервиса.
func NewHandler(svc *blog.Service, log *slog.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

type listResponse struct {
	Items  []blog.Blog `json:"items"`
	Total  int64       `json:"total"`
	Offset int         `json:"offset"`
}

type authRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// bind разбирает JSON-тело; ошибка разбора - ошибка валидации.
func (h *Handler) bind(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		writeError(c, h.log, shared.MarkKind(err, shared.KindValidation))
		return false
	}
	return true
}

func (h *Handler) registerUser(c *gin.Context) {
	var in blog.RegisterUserInput
	if !h.bind(c, &in) {
		return
	}
	u, err := h.svc.RegisterUser(c.Request.Context(), in)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, u)
}

func (h *Handler) authenticate(c *gin.Context) {
	var in authRequest
	if !h.bind(c, &in) {
		return
	}
	u, err := h.svc.Authenticate(c.Request.Context(), in.Email, in.Password)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (h *Handler) listBlogs(c *gin.Context) {
	offset, err1 := queryInt(c, "offset")
	limit, err2 := queryInt(c, "limit")
	if err1 != nil || err2 != nil {
		writeError(c, h.log, shared.MarkKind(firstErr(err1, err2), shared.KindValidation))
		return
	}

	items, total, err := h.svc.ListBlogs(c.Request.Context(), blog.Page{Offset: offset, Limit: limit})
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, listResponse{Items: items, Total: total, Offset: offset})
}

func (h *Handler) createBlog(c *gin.Context) {
	var in blog.CreateBlogInput
	if !h.bind(c, &in) {
		return
	}
	b, err := h.svc.CreateBlog(c.Request.Context(), in)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, b)
}

func (h *Handler) getBlog(c *gin.Context) {
	b, err := h.svc.GetBlog(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (h *Handler) deleteBlog(c *gin.Context) {
	if err := h.svc.DeleteBlog(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) addComment(c *gin.Context) {
	var in blog.AddCommentInput
	if !h.bind(c, &in) {
		return
	}
	in.BlogID = c.Param("id")
	cm, err := h.svc.AddComment(c.Request.Context(), in)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, cm)
}

// health проверяет, что сессия запроса может выполнить запрос к БД,
// и прикладывает статистику пула, если она доступна.
func (h *Handler) health(c *gin.Context) {
	db, ok := dbsession.FromContext(c.Request.Context())
	if !ok {
		writeError(c, h.log, blog.ErrNoSession)
		return
	}
	if _, err := db.SelectInt(c.Request.Context(), "SELECT 1"); err != nil {
		writeError(c, h.log, err)
		return
	}
	if h.poolStats == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}
	stats, healthy := h.poolStats()
	if !healthy {
		h.log.Warn("connection pool saturated", slog.Any("pool", stats))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "pool": stats})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "pool": stats})
}

func (h *Handler) stats(c *gin.Context) {
	st, err := h.svc.Stats(c.Request.Context())
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func queryInt(c *gin.Context, key string) (int, error) {
	v := c.Query(key)
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
