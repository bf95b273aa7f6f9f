package stepflow

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/cucumber/godog"
)

// WorldParameters carries the suite-wide parameters configured on the
// installer. Every scenario receives the same value.
type WorldParameters struct {
	Value any
}

// Get returns the value stored under key when Value is a string-keyed map.
func (w *WorldParameters) Get(key string) (any, bool) {
	m, ok := w.Value.(map[string]any)
	if !ok {
		return nil, false
	}
	v, ok := m[key]
	return v, ok
}

// ScenarioLog writes text into the runner's report for the current scenario
// and mirrors it to the structured logger at debug level.
type ScenarioLog struct {
	mu     sync.Mutex
	ctx    context.Context
	logger Logger
	info   *ScenarioInfo
}

// Log appends msg to the scenario report.
func (l *ScenarioLog) Log(msg string) {
	l.mu.Lock()
	ctx := l.ctx
	l.mu.Unlock()

	godog.Log(ctx, msg)
	l.logger.Debug("Scenario log", "scenario", l.info.Title, "message", msg)
}

// Logf formats and appends a message to the scenario report.
func (l *ScenarioLog) Logf(format string, args ...any) {
	l.Log(fmt.Sprintf(format, args...))
}

func (l *ScenarioLog) bind(ctx context.Context) {
	l.mu.Lock()
	l.ctx = ctx
	l.mu.Unlock()
}

// Attachments collects files to embed in the scenario report. They are handed
// to the runner when the current step or hook returns.
type Attachments struct {
	mu      sync.Mutex
	pending []godog.Attachment
}

// Attach queues data with the given media type.
func (a *Attachments) Attach(data []byte, mediaType string) {
	a.AttachFile("", data, mediaType)
}

// AttachFile queues data under a file name.
func (a *Attachments) AttachFile(fileName string, data []byte, mediaType string) {
	if mediaType == "" {
		mediaType = "text/plain"
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	a.pending = append(a.pending, godog.Attachment{
		Body:      data,
		FileName:  fileName,
		MediaType: mediaType,
	})
}

// flush moves queued attachments into ctx.
func (a *Attachments) flush(ctx context.Context) context.Context {
	a.mu.Lock()
	pending := a.pending
	a.pending = nil
	a.mu.Unlock()

	if len(pending) == 0 {
		return ctx
	}
	return godog.Attach(ctx, pending...)
}

var builtinContextTypes = []reflect.Type{
	reflect.TypeOf((*ScenarioInfo)(nil)),
	reflect.TypeOf((*WorldParameters)(nil)),
	reflect.TypeOf((*ScenarioLog)(nil)),
	reflect.TypeOf((*Attachments)(nil)),
}
