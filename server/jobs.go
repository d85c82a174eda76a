package server

import (
	"slices"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"srs_generator/pipeline"
)

// JobStatus 任务状态
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// Job 一次异步生成任务
type Job struct {
	ID         string           `json:"id"`
	Status     JobStatus        `json:"status"`
	Author     string           `json:"author"`
	OutputName string           `json:"output_name"`
	Dir        string           `json:"-"`
	CreatedAt  time.Time        `json:"created_at"`
	StartedAt  *time.Time       `json:"started_at,omitempty"`
	FinishedAt *time.Time       `json:"finished_at,omitempty"`
	Error      string           `json:"error,omitempty"`
	Report     *pipeline.Report `json:"report,omitempty"`
}

// Done 任务已结束（成功或失败）
func (j Job) Done() bool {
	return j.Status == JobSucceeded || j.Status == JobFailed
}

// jobStore 基于 go-cache 的任务表，过期任务自动清理
type jobStore struct {
	mu    sync.Mutex
	cache *cache.Cache
}

func newJobStore(ttl time.Duration) *jobStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &jobStore{cache: cache.New(ttl, ttl/4)}
}

func (s *jobStore) put(job Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Set(job.ID, &job, cache.DefaultExpiration)
}

// get 返回副本，调用方可随意读取
func (s *jobStore) get(id string) (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	x, ok := s.cache.Get(id)
	if !ok {
		return Job{}, false
	}
	return *x.(*Job), true
}

// update 在锁内修改任务；任务已过期时返回 false
func (s *jobStore) update(id string, fn func(*Job)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	x, ok := s.cache.Get(id)
	if !ok {
		return false
	}
	job := *x.(*Job)
	fn(&job)
	s.cache.Set(id, &job, cache.DefaultExpiration)
	return true
}

// list 按创建时间倒序返回未过期的任务
func (s *jobStore) list() []Job {
	s.mu.Lock()
	items := s.cache.Items()
	s.mu.Unlock()

	out := make([]Job, 0, len(items))
	for _, it := range items {
		out = append(out, *it.Object.(*Job))
	}
	slices.SortFunc(out, func(a, b Job) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out
}
