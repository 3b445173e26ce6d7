package web

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/JonMunkholm/sanandem/internal/core"
	"github.com/JonMunkholm/sanandem/internal/export"
	"github.com/JonMunkholm/sanandem/internal/logging"
)

const (
	msgExportFailed      = "Failed to export data"
	msgBackupFailed      = "Backup failed"
	msgAuditExportFailed = "Failed to export audit log"
)

// exportJob describes one report download.
type exportJob struct {
	format   export.Format
	audience export.Audience
	filters  core.ReportFilters
	// failure is the message answered when the stream fails before any
	// byte reaches the client.
	failure string
}

// acquireExport takes an export slot or answers the request itself.
func (s *Server) acquireExport(w http.ResponseWriter, r *http.Request) bool {
	err := s.exports.Acquire(r.Context())
	if err == nil {
		return true
	}
	if errors.Is(err, core.ErrTooManyExports) {
		w.Header().Set("Retry-After", strconv.Itoa(int(s.cfg.Export.MaxWaitTime.Seconds())+1))
	}
	respondError(w, r, err, http.StatusServiceUnavailable)
	return false
}

// download delays the attachment headers until the first byte is written,
// so a failure before then can still be answered with an error status.
type download struct {
	w        http.ResponseWriter
	format   export.Format
	filename string
	started  bool
}

func (d *download) Write(p []byte) (int, error) {
	if !d.started {
		d.started = true
		export.SetDownloadHeaders(d.w, d.format, d.filename)
	}
	return d.w.Write(p)
}

// Flush implements http.Flusher. It does nothing before the first write.
func (d *download) Flush() {
	if !d.started {
		return
	}
	if f, ok := d.w.(http.Flusher); ok {
		f.Flush()
	}
}

// fail answers msg with a 500 if nothing was sent yet. Otherwise the
// response is left unterminated.
func (d *download) fail(msg string) {
	if !d.started {
		writeError(d.w, http.StatusInternalServerError, msg)
	}
}

// streamReports writes matching reports to w as a download, flushing every
// EXPORT_FLUSH_INTERVAL rows. It returns the row count and whether the
// stream completed. A failed stream is never closed, so a client that
// already received rows sees a truncated document.
func (s *Server) streamReports(w http.ResponseWriter, r *http.Request, reports Reports, job exportJob) (int, bool) {
	if !s.acquireExport(w, r) {
		return 0, false
	}
	defer s.exports.Release()

	now := s.now()
	dl := &download{w: w, format: job.format, filename: export.Filename(job.audience, job.format, now)}
	ew, err := export.NewWriter(dl, job.format, job.audience, now)
	if err != nil {
		respondError(w, r, err, 0)
		return 0, false
	}

	flushEvery := s.cfg.Export.FlushInterval
	err = reports.Stream(r.Context(), job.filters, func(rep core.Report) error {
		if err := ew.Write(rep); err != nil {
			return err
		}
		if flushEvery > 0 && ew.Count()%flushEvery == 0 {
			return ew.Flush()
		}
		return nil
	})
	if err == nil {
		err = ew.Close()
	}
	if err != nil {
		logging.FromContext(r.Context()).Error("export stream failed",
			"audience", job.audience,
			"format", job.format,
			"rows", ew.Count(),
			"sent", dl.started,
			"error", err,
		)
		dl.fail(job.failure)
		return ew.Count(), false
	}

	s.metrics.ExportCompleted(string(job.audience), string(job.format))
	return ew.Count(), true
}
