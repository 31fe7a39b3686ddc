package httpserver

import (
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/dbprobe/internal/httpmw"
	"github.com/keithlinneman/dbprobe/internal/log"
)

const (
	DefaultListenHost = "127.0.0.1"
	DefaultPort       = 8080
)

type Options struct {
	Logger     log.Logger
	ListenHost string // defaults to 127.0.0.1
	Port       int    // defaults to 8080

	// Routes registers the application endpoints on the router.
	Routes func(chi.Router)

	// HandlerTimeout is the longest a handler may wait before it writes,
	// such as the pool acquire timeout. Read and write deadlines are
	// extended to cover it plus DefaultWriteTimeout.
	HandlerTimeout time.Duration

	MetricsMW httpmw.Middleware
	OnPanic   func() // called once per recovered handler panic
}

func (o *Options) addr() string {
	host := o.ListenHost
	if host == "" {
		host = DefaultListenHost
	}
	port := o.Port
	if port == 0 {
		port = DefaultPort
	}
	return joinHostPort(host, port)
}
