package trace

import (
	"fmt"
	"os"
	"strings"
)

// Provider exposes the ambient trace context, if any
type Provider interface {
	// CurrentTraceID returns the active trace id or "" when there is none
	CurrentTraceID() string
	// ProjectID returns the project that owns the traces or ""
	ProjectID() string
}

// Format returns the fully qualified trace name "projects/P/traces/T", or ""
// when the provider is nil or either part is missing.
func Format(p Provider) string {
	if p == nil {
		return ""
	}
	traceID := p.CurrentTraceID()
	if traceID == "" {
		return ""
	}
	projectID := p.ProjectID()
	if projectID == "" {
		return ""
	}
	return fmt.Sprintf("projects/%s/traces/%s", projectID, traceID)
}

// Static always reports the same trace
type Static struct {
	TraceID string
	Project string
}

func (s Static) CurrentTraceID() string { return s.TraceID }
func (s Static) ProjectID() string      { return s.Project }

// XRayEnv is the variable Lambda runtimes set to the active tracing header
const XRayEnv = "_X_AMZN_TRACE_ID"

// XRay reads the Root segment of the X-Ray tracing header from the
// environment on every call, so it follows the current invocation.
type XRay struct {
	Project string
	// Getenv defaults to os.Getenv
	Getenv func(string) string
}

// NewXRay creates a provider that attributes traces to project
func NewXRay(project string) *XRay {
	return &XRay{Project: project, Getenv: os.Getenv}
}

func (x *XRay) CurrentTraceID() string {
	getenv := x.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	return ParseXRayHeader(getenv(XRayEnv)).Root
}

func (x *XRay) ProjectID() string { return x.Project }

// XRayHeader is the parsed form of "Root=...;Parent=...;Sampled=..."
type XRayHeader struct {
	Root    string
	Parent  string
	Sampled bool
}

// ParseXRayHeader tolerates missing parts and unknown keys
func ParseXRayHeader(header string) XRayHeader {
	var h XRayHeader
	for _, part := range strings.Split(header, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "Root":
			h.Root = v
		case "Parent":
			h.Parent = v
		case "Sampled":
			h.Sampled = v == "1"
		}
	}
	return h
}
