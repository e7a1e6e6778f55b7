package runner

import (
	"bytes"
	"context"
	"io"
	"os"

	"github.com/dimiro1/banner"
)

type State int

const (
	StateNew State = iota
	StateStarting
	StateRunning
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

type Runner interface {
	Run(ctx context.Context) error
	Stop() error
	State() State
}

// Hooks run around the lifecycle. OnStart errors abort Run.
type Hooks struct {
	OnStart func() error
	OnStop  func()
}

// Drainer finishes outstanding work before shutdown; ctx carries the drain deadline.
type Drainer interface {
	Drain(ctx context.Context) error
}

// Version is set at build time with -ldflags "-X github.com/harunnryd/sabda/pkg/runner.Version=...".
var Version = "dev"

// BannerOutput receives the start banner; nil disables it.
var BannerOutput io.Writer = os.Stdout

func PrintBanner() {
	if BannerOutput == nil {
		return
	}
	tpl := "{{ .Title \"SABDA\" \"\" 0 }}\nrealtime speech gateway " + Version + "\n"
	banner.Init(BannerOutput, true, false, bytes.NewBufferString(tpl))
}
