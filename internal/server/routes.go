package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/codem/internal/apperr"
	"github.com/zulandar/codem/internal/copilot"
	"github.com/zulandar/codem/internal/project"
	"github.com/zulandar/codem/internal/run"
)

// registerRoutes sets up all API routes on the Gin router.
func registerRoutes(router *gin.Engine, opts StartOpts) {
	router.GET("/projects", handleListProjects(opts.Projects))
	router.POST("/projects", handleCreateProject(opts.Projects))
	router.GET("/projects/:id", handleGetProject(opts.Projects))
	router.POST("/projects/:id/analysis", handleAnalyze(opts.Projects))

	router.GET("/projects/:id/runs", handleListRuns(opts.Runs))
	router.POST("/projects/:id/runs", handleCreateRun(opts.Runs))
	router.GET("/projects/:id/runs/:runId", handleGetRun(opts.Runs))

	router.POST("/copilot", handleCopilot(opts.Copilot))
}

// bindJSON decodes an optional JSON body into v. An empty body leaves v
// unchanged.
func bindJSON(c *gin.Context, v any) error {
	if err := c.ShouldBindJSON(v); err != nil && !errors.Is(err, io.EOF) {
		return apperr.InvalidArgument("invalid JSON body: %v", err)
	}
	return nil
}

func handleListProjects(svc *project.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		projects, err := svc.List(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, projects)
	}
}

func handleCreateProject(svc *project.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var opts project.CreateOpts
		if err := bindJSON(c, &opts); err != nil {
			writeError(c, err)
			return
		}
		p, err := svc.Create(c.Request.Context(), opts)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, p)
	}
}

func handleGetProject(svc *project.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, runs, err := svc.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"project": p, "runs": runs})
	}
}

func handleAnalyze(svc *project.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := svc.Analyze(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, p)
	}
}

func handleListRuns(svc *run.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		runs, err := svc.ListRuns(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, runs)
	}
}

func handleCreateRun(svc *run.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body struct {
			Scope string `json:"scope"`
		}
		if err := bindJSON(c, &body); err != nil {
			writeError(c, err)
			return
		}
		r, err := svc.CreateRun(c.Request.Context(), c.Param("id"), body.Scope)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, r)
	}
}

func handleGetRun(svc *run.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		r, files, err := svc.GetRun(c.Request.Context(), c.Param("id"), c.Param("runId"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"run": r, "files": files})
	}
}

func handleCopilot(a *copilot.Adapter) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req copilot.Request
		if err := bindJSON(c, &req); err != nil {
			writeError(c, err)
			return
		}
		ans, err := a.Ask(c.Request.Context(), req)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, ans)
	}
}
