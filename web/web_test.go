package web

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	var buf bytes.Buffer
	err := Render(&buf, Page{
		Title:       "Smart Watcher",
		DefaultPost: "<b>MRVL</b>",
		Personas: []PersonaView{
			{ID: "researcher", Role: "Analyst", NeedsSearch: true, Selected: true},
			{ID: "editor", Role: "Copy Editor", NeedsGuidelines: true},
		},
	})
	require.NoError(t, err)

	html := buf.String()
	assert.Contains(t, html, "<title>Smart Watcher</title>")
	assert.Contains(t, html, "&lt;b&gt;MRVL&lt;/b&gt;")
	assert.Contains(t, html, `data-id="researcher"`)
	assert.Contains(t, html, "web search")
	assert.Contains(t, html, "guidelines")
	assert.Contains(t, html, "api/runs/stream")
}
