package reftable

import "log"

// Logger is the small logging seam Stack diagnostics go through,
// shaped after devlibx-pebble's Options.Logger (opts.Logger.Infof /
// opts.Logger.Fatalf in ingest.go). No retrieved repo pins a concrete
// third-party logging backend behind that interface, so the default
// implementation here wraps the standard log package; callers with
// their own structured logger can supply one via Stack.SetLogger.
type Logger interface {
	Infof(format string, args ...interface{})
	Warningf(format string, args ...interface{})
}

type stdLogger struct{}

func (stdLogger) Infof(format string, args ...interface{})    { log.Printf("INFO: "+format, args...) }
func (stdLogger) Warningf(format string, args ...interface{}) { log.Printf("WARN: "+format, args...) }

// defaultLogger is used whenever a Stack is constructed without one.
var defaultLogger Logger = stdLogger{}
