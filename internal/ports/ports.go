package ports

import (
	"context"
	"errors"

	"AdverseScreener/internal/domain"
)

// ErrRetrieval marks article retrieval failures. The pipeline treats these
// as fatal: no article, no screening.
var ErrRetrieval = errors.New("article retrieval failed")

// ArticleSource resolves an article reference (URL) into clean text plus
// metadata. Failures wrap ErrRetrieval.
type ArticleSource interface {
	Fetch(ctx context.Context, url string) (domain.ArticleMetadata, error)
}

// AuditSink receives one record per oracle invocation. Implementations must
// be safe for concurrent screenings.
type AuditSink interface {
	Record(ctx context.Context, record domain.OracleCallRecord)
}

// ReportSink persists finished screening results. Writes are all-or-nothing
// at the result level; the core never re-reads a written report.
type ReportSink interface {
	SaveResult(ctx context.Context, result domain.ScreeningResult) error
}

// AlertNotifier pushes adverse findings to analysts out-of-band.
type AlertNotifier interface {
	NotifyAdverse(ctx context.Context, result domain.ScreeningResult) error
}
