// Package downloader copies artifacts out of a repository into a local
// directory with a bounded pool of workers.
package downloader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/frederic-klein/yamr/internal/dist"
)

// Fetcher opens artifacts. *federation.Root satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, ref dist.ArtifactRef) (io.ReadCloser, error)
}

// Job represents a download job.
type Job struct {
	Ref      dist.ArtifactRef
	DestPath string
	// SHA256, when set, is the checksum an already installed file must
	// have to be kept. A mismatching file is downloaded again.
	SHA256 string
}

// Result represents a download result.
type Result struct {
	Job    Job
	Size   int64
	SHA256 string
	Cached bool // the destination already existed
	Error  error
}

// Downloader fetches artifacts in parallel.
type Downloader struct {
	fetcher Fetcher
	workers int
	destDir string
	logger  *log.Logger
}

// Option configures a Downloader.
type Option func(*Downloader)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(d *Downloader) { d.logger = l }
}

// NewDownloader creates a downloader reading from f with the given number
// of workers, writing below destDir.
func NewDownloader(f Fetcher, workers int, destDir string, opts ...Option) *Downloader {
	if workers < 1 {
		workers = 1
	}
	d := &Downloader{
		fetcher: f,
		workers: workers,
		destDir: destDir,
		logger:  log.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Jobs returns one job per ref, placing each artifact at its repository path
// below the destination directory.
func (d *Downloader) Jobs(refs []dist.ArtifactRef) []Job {
	jobs := make([]Job, len(refs))
	for i, ref := range refs {
		jobs[i] = Job{Ref: ref, DestPath: d.DestPath(ref)}
	}
	return jobs
}

// Download runs jobs in parallel. Results are in job order.
func (d *Downloader) Download(ctx context.Context, jobs []Job) []Result {
	results := make([]Result, len(jobs))
	if err := os.MkdirAll(d.destDir, 0755); err != nil {
		for i, job := range jobs {
			results[i] = Result{Job: job, Error: err}
		}
		return results
	}

	jobChan := make(chan int, len(jobs))
	var wg sync.WaitGroup
	for range d.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobChan {
				results[i] = d.downloadOne(ctx, jobs[i])
			}
		}()
	}

	for i := range jobs {
		jobChan <- i
	}
	close(jobChan)
	wg.Wait()

	return results
}

func (d *Downloader) downloadOne(ctx context.Context, job Job) Result {
	res := Result{Job: job}
	if err := ctx.Err(); err != nil {
		res.Error = err
		return res
	}

	// Already present: report its checksum without fetching.
	if f, err := os.Open(job.DestPath); err == nil {
		size, sha, err := digest(f, io.Discard)
		f.Close()
		if err != nil || job.SHA256 == "" || sha == job.SHA256 {
			res.Cached = true
			res.Size, res.SHA256, res.Error = size, sha, err
			return res
		}
		d.logger.Warn("installed artifact changed, reinstalling", "artifact", job.Ref.String(), "sha256", sha, "want", job.SHA256)
	}

	if err := os.MkdirAll(filepath.Dir(job.DestPath), 0755); err != nil {
		res.Error = fmt.Errorf("creating directory: %w", err)
		return res
	}

	rc, err := d.fetcher.Fetch(ctx, job.Ref)
	if err != nil {
		res.Error = fmt.Errorf("downloading %s: %w", job.Ref, err)
		return res
	}
	defer rc.Close()

	// Write to temp file first, then rename
	out, err := os.CreateTemp(filepath.Dir(job.DestPath), "."+filepath.Base(job.DestPath)+".*.tmp")
	if err != nil {
		res.Error = fmt.Errorf("creating file: %w", err)
		return res
	}
	tmpPath := out.Name()

	res.Size, res.SHA256, err = digest(rc, out)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmpPath)
		res.Error = fmt.Errorf("writing %s: %w", job.Ref, err)
		return res
	}

	if err := os.Rename(tmpPath, job.DestPath); err != nil {
		os.Remove(tmpPath)
		res.Error = fmt.Errorf("renaming file: %w", err)
		return res
	}

	d.logger.Debug("downloaded", "artifact", job.Ref.String(), "size", res.Size)
	return res
}

// digest copies r to w and returns the byte count and hex sha256 of r.
func digest(r io.Reader, w io.Writer) (int64, string, error) {
	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(w, h), r)
	if err != nil {
		return n, "", err
	}
	return n, hex.EncodeToString(h.Sum(nil)), nil
}

// DestDir returns the destination directory.
func (d *Downloader) DestDir() string {
	return d.destDir
}

// DestPath returns the destination path for an artifact.
func (d *Downloader) DestPath(ref dist.ArtifactRef) string {
	return filepath.Join(append([]string{d.destDir}, ref.Path()...)...)
}
