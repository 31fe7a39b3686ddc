package opshttp

import (
	"net/http"

	"github.com/keithlinneman/dbprobe/internal/health"
	"github.com/keithlinneman/dbprobe/internal/log"
)

const (
	DefaultListenHost = "127.0.0.1"
	DefaultPort       = 9000
)

type Options struct {
	Logger     log.Logger
	ListenHost string
	Port       int

	Metrics     http.Handler
	EnablePprof bool

	// Health answers /-/healthy and Readiness answers /-/ready. Nil passes.
	Health    health.Probe
	Readiness health.Probe

	OnPanic func()
}
