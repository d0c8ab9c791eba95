// Package api exposes the engine over HTTP: workflow management plus the
// three ingress endpoints (single document, document batch, structured
// message).
package api

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"flowforge/backend"
	"flowforge/client"
	"flowforge/codec"
	"flowforge/graph"
	"flowforge/item"
	"flowforge/log"
)

// Server serves the REST API.
type Server struct {
	echo    *echo.Echo
	client  *client.Client
	options backend.Options
}

func NewServer(c *client.Client, opts ...backend.BackendOption) *Server {
	s := &Server{
		echo:    echo.New(),
		client:  c,
		options: backend.ApplyOptions(opts...),
	}

	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Use(middleware.Recover())

	s.routes()

	return s
}

func (s *Server) routes() {
	s.echo.POST("/workflows", s.createWorkflow)
	s.echo.GET("/workflows", s.listWorkflows)
	s.echo.GET("/workflows/:id", s.getWorkflow)
	s.echo.PUT("/workflows/:id", s.updateWorkflow)
	s.echo.DELETE("/workflows/:id", s.deleteWorkflow)

	s.echo.POST("/workflows/:id/push-document", s.pushDocument)
	s.echo.POST("/workflows/:id/push-documents", s.pushDocuments)
	s.echo.POST("/workflows/:id/push-message", s.pushMessage)

	s.echo.GET("/workflows/:id/runs", s.listRuns)
	s.echo.GET("/runs/:id", s.getRun)
}

// Start blocks serving on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Handler exposes the routing tree, used by tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

type workflowRequest struct {
	Name              string            `json:"name"`
	Description       string            `json:"description"`
	Status            string            `json:"status"`
	Draft             bool              `json:"draft"`
	Definition        *graph.Definition `json:"definition"`
	CrontabExpression string            `json:"crontab_expression"`
}

func (s *Server) createWorkflow(c echo.Context) error {
	var req workflowRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	if req.Name == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name is required")
	}

	workflow := &backend.Workflow{
		Name:              req.Name,
		Description:       req.Description,
		Status:            backend.WorkflowStatus(req.Status),
		Draft:             req.Draft,
		Definition:        req.Definition,
		CrontabExpression: req.CrontabExpression,
	}

	if err := s.client.CreateWorkflow(c.Request().Context(), workflow); err != nil {
		return s.mapError(err)
	}

	return c.JSON(http.StatusCreated, workflow)
}

func (s *Server) listWorkflows(c echo.Context) error {
	options := backend.ListWorkflowsOptions{
		Status:   backend.WorkflowStatus(c.QueryParam("status")),
		SortDesc: c.QueryParam("sort") == "desc",
	}

	workflows, err := s.client.ListWorkflows(c.Request().Context(), options)
	if err != nil {
		return s.mapError(err)
	}

	return c.JSON(http.StatusOK, workflows)
}

func (s *Server) getWorkflow(c echo.Context) error {
	id, err := workflowID(c)
	if err != nil {
		return err
	}

	workflow, err := s.client.GetWorkflow(c.Request().Context(), id)
	if err != nil {
		return s.mapError(err)
	}

	return c.JSON(http.StatusOK, workflow)
}

type workflowUpdateRequest struct {
	Name              *string                 `json:"name"`
	Description       *string                 `json:"description"`
	Status            *backend.WorkflowStatus `json:"status"`
	Draft             *bool                   `json:"draft"`
	Definition        *graph.Definition       `json:"definition"`
	CrontabExpression *string                 `json:"crontab_expression"`
}

func (s *Server) updateWorkflow(c echo.Context) error {
	id, err := workflowID(c)
	if err != nil {
		return err
	}

	var req workflowUpdateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}

	workflow, err := s.client.UpdateWorkflow(c.Request().Context(), id, &backend.WorkflowUpdate{
		Name:              req.Name,
		Description:       req.Description,
		Status:            req.Status,
		Draft:             req.Draft,
		Definition:        req.Definition,
		CrontabExpression: req.CrontabExpression,
	})
	if err != nil {
		return s.mapError(err)
	}

	return c.JSON(http.StatusOK, workflow)
}

func (s *Server) deleteWorkflow(c echo.Context) error {
	id, err := workflowID(c)
	if err != nil {
		return err
	}

	if err := s.client.DeleteWorkflow(c.Request().Context(), id); err != nil {
		return s.mapError(err)
	}

	return c.NoContent(http.StatusNoContent)
}

func (s *Server) pushDocument(c echo.Context) error {
	id, err := workflowID(c)
	if err != nil {
		return err
	}

	header, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "multipart field \"file\" is required")
	}

	file, err := readUpload(header)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "could not read upload")
	}

	run, err := s.client.PushDocument(c.Request().Context(), id, file)
	if err != nil {
		return s.mapError(err)
	}

	return c.JSON(http.StatusAccepted, run)
}

func (s *Server) pushDocuments(c echo.Context) error {
	id, err := workflowID(c)
	if err != nil {
		return err
	}

	form, err := c.MultipartForm()
	if err != nil || len(form.File["files"]) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "multipart field \"files\" is required")
	}

	files := make([]item.File, 0, len(form.File["files"]))
	for _, header := range form.File["files"] {
		file, err := readUpload(header)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "could not read upload")
		}
		files = append(files, file)
	}

	run, err := s.client.PushDocuments(c.Request().Context(), id, files)
	if err != nil {
		return s.mapError(err)
	}

	return c.JSON(http.StatusAccepted, run)
}

func (s *Server) pushMessage(c echo.Context) error {
	id, err := workflowID(c)
	if err != nil {
		return err
	}

	raw, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "could not read request body")
	}

	run, err := s.client.PushMessage(c.Request().Context(), id, raw)
	if err != nil {
		return s.mapError(err)
	}

	return c.JSON(http.StatusAccepted, run)
}

func (s *Server) listRuns(c echo.Context) error {
	id, err := workflowID(c)
	if err != nil {
		return err
	}

	// A listing for an unknown workflow is a 404, not an empty list.
	if _, err := s.client.GetWorkflow(c.Request().Context(), id); err != nil {
		return s.mapError(err)
	}

	runs, err := s.client.ListRuns(c.Request().Context(), id)
	if err != nil {
		return s.mapError(err)
	}

	return c.JSON(http.StatusOK, runs)
}

type runResponse struct {
	*backend.Run
	Results []*backend.Result `json:"results,omitempty"`
}

func (s *Server) getRun(c echo.Context) error {
	run, err := s.client.GetRun(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.mapError(err)
	}

	results, err := s.client.GetResults(c.Request().Context(), run.ID)
	if err != nil {
		return s.mapError(err)
	}

	return c.JSON(http.StatusOK, runResponse{Run: run, Results: results})
}

// mapError translates engine errors into HTTP status codes. Client mistakes
// surface with their message; anything else is a plain 500 without internals.
func (s *Server) mapError(err error) error {
	var (
		invalidGraph *graph.InvalidGraphError
		malformed    *codec.MalformedEncodingError
		notRunnable  *client.WorkflowNotRunnableError
	)

	switch {
	case errors.Is(err, backend.ErrWorkflowNotFound),
		errors.Is(err, backend.ErrRunNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())

	case errors.As(err, &invalidGraph),
		errors.As(err, &malformed),
		errors.As(err, &notRunnable),
		errors.Is(err, item.ErrUnsupportedPayload):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())

	default:
		s.options.Logger.Error("request failed", log.ErrorKey, err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}

func workflowID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "workflow id must be an integer")
	}
	return id, nil
}

func readUpload(header *multipart.FileHeader) (item.File, error) {
	f, err := header.Open()
	if err != nil {
		return item.File{}, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return item.File{}, err
	}

	return item.File{
		Data:     data,
		Name:     header.Filename,
		MimeType: header.Header.Get("Content-Type"),
	}, nil
}
