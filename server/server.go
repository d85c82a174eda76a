// Package server 提供 HTTP 接口：提交生成任务、查询进度、下载文档。
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"srs_generator/logger"
	"srs_generator/metrics"
	"srs_generator/pipeline"
	"srs_generator/srs"
)

// Runner 执行一次生成；*pipeline.Pipeline 满足该接口。
type Runner interface {
	Run(ctx context.Context, brief srs.ProjectBrief) (*pipeline.Report, error)
}

// Factory 为每个任务构建 Runner，jobDir 是该任务独立的输出目录。
type Factory func(jobDir string) (Runner, error)

type Options struct {
	OutputDir string
	JobTTL    time.Duration
	// MaxJobs 同时运行的任务上限，其余排队。
	MaxJobs int
	// JobTimeout 单个任务的超时；0 表示不限。
	JobTimeout time.Duration
	Logger     *slog.Logger
}

type Server struct {
	factory Factory
	opts    Options
	store   *jobStore
	sem     *semaphore.Weighted
	log     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(factory Factory, opts Options) (*Server, error) {
	if factory == nil {
		return nil, errors.New("pipeline factory required")
	}
	if opts.OutputDir == "" {
		opts.OutputDir = "output"
	}
	if opts.MaxJobs <= 0 {
		opts.MaxJobs = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		factory: factory,
		opts:    opts,
		store:   newJobStore(opts.JobTTL),
		sem:     semaphore.NewWeighted(int64(opts.MaxJobs)),
		log:     logger.OrDiscard(opts.Logger).With("component", "server"),
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

func (s *Server) Routes() http.Handler {
	r := gin.New()
	r.Use(recovery(s.log), requestID(), accessLog(s.log))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := r.Group("/api/srs")
	api.POST("", s.handleCreate)
	api.GET("", s.handleList)
	api.GET("/:id", s.handleGet)
	api.GET("/:id/document", s.handleDocument)
	api.GET("/:id/preview", s.handlePreview)
	return r
}

// Close 取消排队和运行中的任务并等待其退出。
func (s *Server) Close() {
	s.cancel()
	s.wg.Wait()
}

// Wait 等待所有已提交的任务结束。
func (s *Server) Wait() {
	s.wg.Wait()
}

// --- Handlers ---

type createReq struct {
	Description string `json:"description"`
	Author      string `json:"author"`
	OutputName  string `json:"output_name"`
}

func (s *Server) handleCreate(c *gin.Context) {
	var req createReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id := uuid.NewString()
	dir := filepath.Join(s.opts.OutputDir, id)
	name := outputName(req.OutputName)
	brief, err := srs.NewProjectBrief(req.Description, req.Author, filepath.Join(dir, name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		s.log.Error("create job dir failed", "dir", dir, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cannot create job directory"})
		return
	}

	job := Job{
		ID:         id,
		Status:     JobQueued,
		Author:     brief.Author,
		OutputName: filepath.Base(brief.OutputFile),
		Dir:        dir,
		CreatedAt:  time.Now(),
	}
	s.store.put(job)
	s.log.Info("job queued", "job_id", id, "output", brief.OutputFile)

	s.wg.Add(1)
	go s.run(job, brief)

	c.Header("Location", "/api/srs/"+id)
	c.JSON(http.StatusAccepted, job)
}

func (s *Server) handleList(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"jobs": s.store.list()})
}

func (s *Server) handleGet(c *gin.Context) {
	job, ok := s.store.get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, job)
}

func (s *Server) handleDocument(c *gin.Context) {
	job, ok := s.finishedJob(c)
	if !ok {
		return
	}
	c.FileAttachment(job.Report.OutputFile, filepath.Base(job.Report.OutputFile))
}

func (s *Server) handlePreview(c *gin.Context) {
	job, ok := s.finishedJob(c)
	if !ok {
		return
	}
	if job.Report.PreviewFile == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "no preview for this job"})
		return
	}
	c.File(job.Report.PreviewFile)
}

// finishedJob 取出已成功的任务，否则写好错误响应
func (s *Server) finishedJob(c *gin.Context) (Job, bool) {
	job, ok := s.store.get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return Job{}, false
	}
	if job.Status != JobSucceeded || job.Report == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "job not finished", "status": job.Status})
		return Job{}, false
	}
	return job, true
}

// --- Worker ---

func (s *Server) run(job Job, brief srs.ProjectBrief) {
	defer s.wg.Done()
	log := s.log.With("job_id", job.ID)

	if err := s.sem.Acquire(s.ctx, 1); err != nil {
		s.finish(job.ID, nil, errors.New("server shutting down"))
		return
	}
	defer s.sem.Release(1)
	metrics.JobsInFlight.Inc()
	defer metrics.JobsInFlight.Dec()

	s.store.update(job.ID, func(j *Job) {
		now := time.Now()
		j.Status, j.StartedAt = JobRunning, &now
	})

	ctx := s.ctx
	if s.opts.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.JobTimeout)
		defer cancel()
	}

	runner, err := s.factory(job.Dir)
	if err != nil {
		log.Error("build pipeline failed", "error", err)
		s.finish(job.ID, nil, err)
		return
	}
	log.Info("job started")
	report, err := runner.Run(ctx, brief)
	if err != nil {
		log.Error("job failed", "error", err)
	} else {
		log.Info("job finished", "placeholders", len(report.Placeholders), "warnings", len(report.Warnings))
	}
	s.finish(job.ID, report, err)
}

func (s *Server) finish(id string, report *pipeline.Report, err error) {
	s.store.update(id, func(j *Job) {
		now := time.Now()
		j.FinishedAt = &now
		j.Report = report
		if err != nil {
			j.Status, j.Error = JobFailed, err.Error()
			return
		}
		j.Status = JobSucceeded
	})
}

var unsafeName = regexp.MustCompile(`[^\w.\-]+`)

// outputName 只保留文件名部分，去掉不安全字符
func outputName(name string) string {
	name = strings.TrimSpace(filepath.Base(strings.ReplaceAll(name, `\`, "/")))
	name = unsafeName.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._")
	if name == "" {
		return "srs"
	}
	return name
}
