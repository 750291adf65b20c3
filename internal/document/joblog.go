package document

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/altinukshini/condense/internal/api"
	"github.com/altinukshini/condense/internal/cache"
	"github.com/altinukshini/condense/internal/model"
)

// JobClient is the part of the GitHub API client job logs need.
type JobClient interface {
	Repo() string
	GetJob(jobID int64) (*model.Job, error)
	ListJobs(runID int64, filter api.JobsFilter) (*model.JobsResponse, error)
	DownloadJobLog(ctx context.Context, jobID int64) (io.ReadCloser, error)
}

// JobLog is the log of one GitHub Actions job.
type JobLog struct {
	Lines
	Job  model.Job
	repo string
}

func (j *JobLog) ID() string {
	return fmt.Sprintf("gh:%s/jobs/%d", j.repo, j.Job.ID)
}

func (j *JobLog) Title() string {
	return fmt.Sprintf("%s (job %d)", j.Job.Name, j.Job.ID)
}

// JobLogs opens job logs, serving completed jobs from the on-disk cache
// when possible.
type JobLogs struct {
	client          JobClient
	cache           *cache.LogCache
	stripTimestamps bool
}

func NewJobLogs(client JobClient, logCache *cache.LogCache, stripTimestamps bool) *JobLogs {
	return &JobLogs{client: client, cache: logCache, stripTimestamps: stripTimestamps}
}

func (j *JobLogs) Open(ctx context.Context, jobID int64) (*JobLog, error) {
	job, err := j.client.GetJob(jobID)
	if err != nil {
		return nil, err
	}
	return j.load(ctx, *job)
}

// OpenRun opens the logs of every job of a run that has started.
func (j *JobLogs) OpenRun(ctx context.Context, runID int64) ([]*JobLog, error) {
	resp, err := j.client.ListJobs(runID, api.JobsFilter{Filter: "latest"})
	if err != nil {
		return nil, err
	}
	var logs []*JobLog
	for _, job := range resp.Jobs {
		if job.Status == model.RunStatusQueued {
			continue
		}
		jl, err := j.load(ctx, job)
		if err != nil {
			return nil, err
		}
		logs = append(logs, jl)
	}
	if len(logs) == 0 {
		return nil, fmt.Errorf("run %d has no job logs", runID)
	}
	return logs, nil
}

func (j *JobLogs) load(ctx context.Context, job model.Job) (*JobLog, error) {
	text, err := j.fetch(ctx, job)
	if err != nil {
		return nil, err
	}
	lines := FromString(text)
	if j.stripTimestamps {
		for i, l := range lines {
			lines[i] = StripTimestamp(l)
		}
	}
	return &JobLog{Lines: lines, Job: job, repo: j.client.Repo()}, nil
}

func (j *JobLogs) fetch(ctx context.Context, job model.Job) (string, error) {
	if j.cache != nil && j.cache.HasJob(job.ID) {
		log.Printf("job %d: log served from cache", job.ID)
		return j.cache.ReadJobLog(job.ID)
	}
	rc, err := j.client.DownloadJobLog(ctx, job.ID)
	if err != nil {
		return "", fmt.Errorf("download job %d log: %w", job.ID, err)
	}
	defer rc.Close()

	// Logs of running jobs keep growing and are not cached.
	if j.cache == nil || !job.Completed() {
		data, err := io.ReadAll(rc)
		if err != nil {
			return "", fmt.Errorf("download job %d log: %w", job.ID, err)
		}
		return string(data), nil
	}
	if _, err := j.cache.StoreJobLog(job.ID, rc); err != nil {
		return "", err
	}
	meta := cache.JobMeta{
		JobID:      job.ID,
		RunID:      job.RunID,
		Repo:       j.client.Repo(),
		Name:       job.Name,
		Conclusion: string(job.Conclusion),
		StoredAt:   time.Now(),
	}
	if err := j.cache.WriteMeta(meta); err != nil {
		log.Printf("job %d: write cache meta: %v", job.ID, err)
	}
	return j.cache.ReadJobLog(job.ID)
}

// StripTimestamp removes the RFC 3339 timestamp GitHub prefixes to every
// job log line.
func StripTimestamp(line string) string {
	i := strings.IndexByte(line, ' ')
	if i < 20 || line[i-1] != 'Z' {
		return line
	}
	if _, err := time.Parse(time.RFC3339Nano, line[:i]); err != nil {
		return line
	}
	return line[i+1:]
}
