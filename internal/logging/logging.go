// Package logging configures the process logger.
package logging

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

// New returns a logger writing to out at level in the given format ("text" or "json").
func New(out io.Writer, level, format string) (*logrus.Logger, error) {
	lvl, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	log := logrus.New()
	log.SetOutput(out)
	log.SetLevel(lvl)

	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "text":
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("log format must be text or json (got %q)", format)
	}
	return log, nil
}

// FromContext returns log annotated with the request id chi assigned to ctx, if any.
func FromContext(ctx context.Context, log logrus.FieldLogger) logrus.FieldLogger {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if reqID := middleware.GetReqID(ctx); reqID != "" {
		return log.WithField("request_id", reqID)
	}
	return log
}
