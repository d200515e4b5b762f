// Package klog is the kernel's structured logger. The teacher logs
// through ad hoc fmt.Print calls scattered across kernel/main.go;
// google-gvisor's pkg/v2/service.go shows the idiom this module
// follows instead -- a package-level logrus logger, with WithEnv
// attaching the environment id as a field on call sites that log about
// a particular env, rather than repeating it in every format string.
package klog

import (
	"os"

	"github.com/sirupsen/logrus"
)

var log = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetLevel(logrus.InfoLevel)
	return l
}

// SetLevel adjusts verbosity; the CLI harness wires this to a -v flag.
func SetLevel(debug bool) {
	if debug {
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetLevel(logrus.InfoLevel)
	}
}

func Debugf(format string, args ...interface{}) { log.Debugf(format, args...) }
func Infof(format string, args ...interface{})  { log.Infof(format, args...) }
func Warnf(format string, args ...interface{})  { log.Warnf(format, args...) }

// WithEnv returns an entry pre-tagged with the environment id, for
// call sites that log about a particular env.
func WithEnv(id uint32) *logrus.Entry {
	return log.WithField("env", id)
}
