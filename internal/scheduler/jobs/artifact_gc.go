package jobs

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/hmuraoka/kabuto/internal/calendar"
	"github.com/hmuraoka/kabuto/pkg/logger"
)

// artifactDirPattern matches the per-trade-date artifact directories.
var artifactDirPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// ArtifactGCJob prunes artifact directories older than the retention
// window. The store keeps the decision card and quality report of
// every run; only the bulky per-day file sets age out.
type ArtifactGCJob struct {
	outBase  string
	keepDays int
	log      *logger.Logger
}

// NewArtifactGCJob binds the job to the artifact root. keepDays <= 0
// keeps 90 days.
func NewArtifactGCJob(outBase string, keepDays int, log *logger.Logger) *ArtifactGCJob {
	if keepDays <= 0 {
		keepDays = 90
	}
	return &ArtifactGCJob{
		outBase:  outBase,
		keepDays: keepDays,
		log:      log.WithComponent("jobs.artifact_gc"),
	}
}

// Name returns the job name.
func (j *ArtifactGCJob) Name() string { return "artifact_gc" }

// Schedule returns the cron expression (Saturday 04:00 JST).
func (j *ArtifactGCJob) Schedule() string { return "0 0 4 * * 6" }

// Run removes expired trade-date directories. Files that do not look
// like trade-date directories are left alone.
func (j *ArtifactGCJob) Run(ctx context.Context) error {
	entries, err := os.ReadDir(j.outBase)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	cutoff := calendar.Date(time.Now().In(calendar.JST)).AddDate(0, 0, -j.keepDays)
	removed := 0
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !e.IsDir() || !artifactDirPattern.MatchString(e.Name()) {
			continue
		}
		day, err := time.ParseInLocation("2006-01-02", e.Name(), calendar.JST)
		if err != nil || !day.Before(cutoff) {
			continue
		}
		path := filepath.Join(j.outBase, e.Name())
		if err := os.RemoveAll(path); err != nil {
			j.log.WithError(err).WithField("path", path).Warn("Failed to remove artifact dir")
			continue
		}
		removed++
	}

	if removed > 0 {
		j.log.WithFields(map[string]interface{}{
			"removed":   removed,
			"keep_days": j.keepDays,
		}).Info("Artifact directories pruned")
	}
	return nil
}
