package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/servhub/internal/lifecycle"
)

// Router provides embeddable HTTP handlers for managing server instances.
// Endpoints:
//
//	GET    {basePath}/servers          list records with runtime status
//	POST   {basePath}/refresh          rescan local instances
//	POST   {basePath}/start            query: key=name@version
//	POST   {basePath}/stop             query: key=name@version
//	DELETE {basePath}/servers          query: key=name@version
//	PATCH  {basePath}/servers/setting  body: {key, setting}
//	GET    {basePath}/status           query: key=name@version
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	mgr      *lifecycle.Manager
	basePath string
}

func NewRouter(mgr *lifecycle.Manager, basePath string) *Router {
	return &Router{mgr: mgr, basePath: sanitizeBase(basePath)}
}

// Handler returns an http.Handler powered by gin that can be mounted in
// any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/servers", r.handleList)
	group.POST("/refresh", r.handleRefresh)
	group.POST("/start", r.handleStart)
	group.POST("/stop", r.handleStop)
	group.DELETE("/servers", r.handleDelete)
	group.PATCH("/servers/setting", r.handleUpdateSetting)
	group.GET("/status", r.handleStatus)
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
func NewServer(addr, basePath string, mgr *lifecycle.Manager) (*http.Server, error) {
	r := NewRouter(mgr, basePath)
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server, nil
}

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

type statusResp struct {
	Key    string `json:"key"`
	Status string `json:"status"`
}

func (r *Router) handleList(c *gin.Context) {
	c.JSON(http.StatusOK, r.mgr.List())
}

func (r *Router) handleRefresh(c *gin.Context) {
	if err := r.mgr.Refresh(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, okResp{OK: true})
}

func (r *Router) handleStart(c *gin.Context) {
	key := c.Query("key")
	if key == "" {
		c.JSON(http.StatusBadRequest, errorResp{Error: "missing key"})
		return
	}
	if err := r.mgr.Start(c.Request.Context(), key); err != nil {
		c.JSON(errStatus(err), errorResp{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, okResp{OK: true})
}

func (r *Router) handleStop(c *gin.Context) {
	key := c.Query("key")
	if key == "" {
		c.JSON(http.StatusBadRequest, errorResp{Error: "missing key"})
		return
	}
	if err := r.mgr.Stop(c.Request.Context(), key); err != nil {
		c.JSON(errStatus(err), errorResp{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, okResp{OK: true})
}

func (r *Router) handleDelete(c *gin.Context) {
	key := c.Query("key")
	if key == "" {
		c.JSON(http.StatusBadRequest, errorResp{Error: "missing key"})
		return
	}
	if err := r.mgr.Delete(c.Request.Context(), key); err != nil {
		c.JSON(errStatus(err), errorResp{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, okResp{OK: true})
}

type updateSettingReq struct {
	Key     string         `json:"key"`
	Setting map[string]any `json:"setting"`
}

func (r *Router) handleUpdateSetting(c *gin.Context) {
	var req updateSettingReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if req.Key == "" {
		c.JSON(http.StatusBadRequest, errorResp{Error: "missing key"})
		return
	}
	if err := r.mgr.UpdateSetting(c.Request.Context(), req.Key, req.Setting); err != nil {
		c.JSON(http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, okResp{OK: true})
}

func (r *Router) handleStatus(c *gin.Context) {
	key := c.Query("key")
	if key == "" {
		c.JSON(http.StatusBadRequest, errorResp{Error: "missing key"})
		return
	}
	st, err := r.mgr.Status(key)
	if err != nil {
		c.JSON(errStatus(err), errorResp{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, statusResp{Key: key, Status: st.String()})
}

// errStatus maps lifecycle errors to HTTP codes: invalid transitions are
// conflicts, unknown keys are not found.
func errStatus(err error) int {
	switch {
	case lifecycle.IsStatusError(err):
		return http.StatusConflict
	case errors.Is(err, lifecycle.ErrUnknownServer):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func sanitizeBase(bp string) string {
	bp = strings.TrimSpace(bp)
	if bp == "" || bp == "/" {
		return ""
	}
	if !strings.HasPrefix(bp, "/") {
		bp = "/" + bp
	}
	return strings.TrimSuffix(bp, "/")
}
