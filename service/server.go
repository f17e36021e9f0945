package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/swiss-ai-center/text2audio/bridge"
	"github.com/swiss-ai-center/text2audio/storage"
	"github.com/swiss-ai-center/text2audio/task"
)

func init() {
	gin.SetMode(gin.ReleaseMode)
}

// Server is the HTTP surface of the service: task submission and retrieval
// for engines, status and docs for humans.
type Server struct {
	srv       *http.Server
	router    *gin.Engine
	info      Info
	runner    *task.Runner
	tasks     *task.Store
	artifacts storage.Storage
	maxUpload int64
}

func NewServer(addr string, info Info, runner *task.Runner, tasks *task.Store, artifacts storage.Storage, maxUpload int64) *Server {
	s := &Server{
		info:      info,
		runner:    runner,
		tasks:     tasks,
		artifacts: artifacts,
		maxUpload: maxUpload,
	}

	// no default logger
	router := gin.New()
	router.Use(gin.Recovery(), corsMiddleware())

	router.GET("/", func(c *gin.Context) {
		c.Redirect(http.StatusMovedPermanently, "/docs")
	})
	router.GET("/docs", s.handleDocs)
	router.GET("/status", s.handleStatus)
	router.POST("/compute", s.handleCompute)
	router.GET("/tasks/:id", s.handleTask)
	router.GET("/tasks/:id/result", s.handleTaskResult)

	s.router = router
	s.srv = &http.Server{
		Addr:    addr,
		Handler: router,
	}
	return s
}

// Handler exposes the route table, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves HTTP until Stop is called.
func (s *Server) Start() error {
	log.Infof("Starting %s on %s", Slug, s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil {
		if err != http.ErrServerClosed {
			return fmt.Errorf("error starting server: %v", err)
		}
		log.Info("Server closed")
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	log.Debugf("Stopping server")
	return s.srv.Shutdown(ctx)
}

func respError(c *gin.Context, code int, msg string) {
	c.JSON(code, gin.H{"error": msg})
}

// respFormError answers a failed multipart read. A body over the configured
// cap surfaces as *http.MaxBytesError and maps to 413 naming the limit.
func respFormError(c *gin.Context, err error) {
	var tooBig *http.MaxBytesError
	if errors.As(err, &tooBig) {
		respError(c, http.StatusRequestEntityTooLarge, fmt.Sprintf("request body exceeds the %d byte limit", tooBig.Limit))
		return
	}
	respError(c, http.StatusBadRequest, err.Error())
}

// the engine's frontend runs in a browser, so every route answers CORS
// preflights and allows any origin
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (s *Server) handleDocs(c *gin.Context) {
	c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(s.info.Description))
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": s.info.Name,
		"version": Version,
		"status":  s.info.Status,
		"tasks":   s.tasks.Counts(),
	})
}

// handleCompute accepts a multipart form with the two input parts and
// queues a task. The optional callback_url value names the engine to notify
// once the task reaches a terminal status.
func (s *Server) handleCompute(c *gin.Context) {
	if s.maxUpload > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxUpload)
	}

	jsonDescription, err := formFileBytes(c, "json_description")
	if err != nil {
		respFormError(c, err)
		return
	}
	inputText, err := formFileBytes(c, "input_text")
	if err != nil {
		respFormError(c, err)
		return
	}

	t := task.New()
	t.DescriptorKey = t.ID + "/json_description.json"
	t.InputTextKey = t.ID + "/input_text.txt"
	t.CallbackURL = c.PostForm("callback_url")

	if err := s.artifacts.Put(t.DescriptorKey, jsonDescription); err != nil {
		respError(c, http.StatusInternalServerError, err.Error())
		return
	}
	if err := s.artifacts.Put(t.InputTextKey, inputText); err != nil {
		respError(c, http.StatusInternalServerError, err.Error())
		return
	}

	id, status := t.ID, t.Status.String()
	if err := s.runner.Submit(t); err != nil {
		// the rejected task keeps no record, so its inputs go too
		for _, key := range []string{t.DescriptorKey, t.InputTextKey} {
			if derr := s.artifacts.Delete(key); derr != nil {
				log.Warnf("error deleting %s: %v", key, derr)
			}
		}
		respError(c, http.StatusServiceUnavailable, err.Error())
		return
	}
	log.Infof("task %s queued", id)
	c.JSON(http.StatusCreated, gin.H{"id": id, "status": status})
}

func (s *Server) handleTask(c *gin.Context) {
	t, ok := s.tasks.Get(c.Param("id"))
	if !ok {
		respError(c, http.StatusNotFound, "task not found")
		return
	}
	c.JSON(http.StatusOK, t)
}

func (s *Server) handleTaskResult(c *gin.Context) {
	t, ok := s.tasks.Get(c.Param("id"))
	if !ok {
		respError(c, http.StatusNotFound, "task not found")
		return
	}
	switch t.Status {
	case task.TaskStatusFinished:
	case task.TaskStatusFailed:
		respError(c, http.StatusConflict, t.Error)
		return
	default:
		respError(c, http.StatusConflict, "task not finished")
		return
	}
	data, err := s.artifacts.Get(t.ResultKey)
	if err != nil {
		respError(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.Data(http.StatusOK, bridge.MediaTypeOgg, data)
}

func formFileBytes(c *gin.Context, name string) ([]byte, error) {
	fh, err := c.FormFile(name)
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return nil, err
		}
		return nil, fmt.Errorf("missing %s part", name)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("error opening %s part: %v", name, err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("error reading %s part: %v", name, err)
	}
	return data, nil
}
