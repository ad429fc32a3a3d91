package trace

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const header = "Root=1-5759e988-bd862e3fe1be46a994272793;Parent=53995c3f42cd8ad8;Sampled=1"

func TestFormat(t *testing.T) {
	assert.Equal(t, "", Format(nil))
	assert.Equal(t, "", Format(Static{}))
	assert.Equal(t, "", Format(Static{TraceID: "abc"}))
	assert.Equal(t, "", Format(Static{Project: "p"}))
	assert.Equal(t, "projects/p/traces/abc", Format(Static{TraceID: "abc", Project: "p"}))
}

func TestParseXRayHeader(t *testing.T) {
	h := ParseXRayHeader(header)
	assert.Equal(t, "1-5759e988-bd862e3fe1be46a994272793", h.Root)
	assert.Equal(t, "53995c3f42cd8ad8", h.Parent)
	assert.True(t, h.Sampled)

	assert.Equal(t, XRayHeader{}, ParseXRayHeader(""))
	assert.Equal(t, XRayHeader{Root: "r"}, ParseXRayHeader("garbage;Root=r;Other=1"))
}

func TestXRay(t *testing.T) {
	env := map[string]string{}
	x := &XRay{Project: "proj", Getenv: func(k string) string { return env[k] }}

	assert.Equal(t, "", Format(x))

	env[XRayEnv] = header
	assert.Equal(t, "projects/proj/traces/1-5759e988-bd862e3fe1be46a994272793", Format(x))
}
