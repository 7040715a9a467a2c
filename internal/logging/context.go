package logging

import "context"

type requestLogKey struct{}

// WithRequestLog attaches an access-log record to ctx so handlers can fill
// in operation details before the middleware writes it.
func WithRequestLog(ctx context.Context, entry *RequestLog) context.Context {
	return context.WithValue(ctx, requestLogKey{}, entry)
}

// RequestLogFrom returns the record attached by WithRequestLog, or nil.
func RequestLogFrom(ctx context.Context) *RequestLog {
	entry, _ := ctx.Value(requestLogKey{}).(*RequestLog)
	return entry
}

// Annotate records the cache operation and key on the request's access log
// record, if any.
func Annotate(ctx context.Context, op, key string) {
	if entry := RequestLogFrom(ctx); entry != nil {
		entry.Operation = op
		entry.Key = key
	}
}

// AnnotateHit records a lookup result on the request's access log record.
func AnnotateHit(ctx context.Context, hit bool) {
	if entry := RequestLogFrom(ctx); entry != nil {
		entry.Hit = &hit
	}
}
