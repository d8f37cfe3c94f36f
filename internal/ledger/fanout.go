package ledger

import (
	"context"
	"errors"

	"github.com/alanyoungcy/tradexec/internal/domain"
)

// FanoutSink appends each entry to every underlying sink. The JSONL writer is
// the authoritative trail; database mirrors come after it so a mirror outage
// never loses the local record.
type FanoutSink struct {
	sinks []domain.AuditSink
}

// NewFanoutSink creates a FanoutSink over the given sinks in order.
func NewFanoutSink(sinks ...domain.AuditSink) *FanoutSink {
	return &FanoutSink{sinks: sinks}
}

// Append implements domain.AuditSink. All sinks are attempted; errors are
// joined so a failing mirror does not mask the authoritative write.
func (f *FanoutSink) Append(ctx context.Context, entry domain.AuditEntry) error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.Append(ctx, entry); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ domain.AuditSink = (*FanoutSink)(nil)
