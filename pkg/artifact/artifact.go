// Package artifact names generated reports and hands them to a delivery sink.
package artifact

import (
	"context"
	"time"

	"github.com/goliatone/go-reportbuilder/pkg/model"
)

// ContentType is the media type of generated presentations.
const ContentType = "application/vnd.openxmlformats-officedocument.presentationml.presentation"

const (
	filenamePrefix = "report_"
	filenameSuffix = ".pptx"
	filenameLayout = "20060102T150405"
)

// Filename returns report_<YYYYMMDDTHHMMSS>.pptx for t in UTC.
func Filename(t time.Time) string {
	return filenamePrefix + t.UTC().Format(filenameLayout) + filenameSuffix
}

// Sink delivers a finished artifact to the operator (a download folder, a
// browser download, an HTTP response).
type Sink interface {
	Deliver(ctx context.Context, a model.Artifact) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, a model.Artifact) error

// Deliver calls f.
func (f SinkFunc) Deliver(ctx context.Context, a model.Artifact) error {
	return f(ctx, a)
}
