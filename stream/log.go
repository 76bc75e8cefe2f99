package stream

import nats "github.com/nats-io/nats-server/v2/server"

// NopLogger discards everything.
type NopLogger struct{}

var _ nats.Logger = NopLogger{}

func (NopLogger) Noticef(format string, v ...interface{}) {}
func (NopLogger) Warnf(format string, v ...interface{})   {}
func (NopLogger) Fatalf(format string, v ...interface{})  {}
func (NopLogger) Errorf(format string, v ...interface{})  {}
func (NopLogger) Debugf(format string, v ...interface{})  {}
func (NopLogger) Tracef(format string, v ...interface{})  {}
