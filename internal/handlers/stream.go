package handlers

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/pandeptwidyaop/app-chooser/internal/services"
)

// LogHandler serves the install status log.
type LogHandler struct {
	logs *services.LogStream
}

func NewLogHandler(logs *services.LogStream) *LogHandler {
	return &LogHandler{logs: logs}
}

// Lines returns the buffered log lines.
// GET /api/logs
func (h *LogHandler) Lines(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"lines": h.logs.Lines()})
}

// Clear drops the buffered lines.
// DELETE /api/logs
func (h *LogHandler) Clear(c *gin.Context) {
	h.logs.Clear()
	c.Status(http.StatusNoContent)
}

// Stream replays the buffered lines, then follows new ones as server-sent
// events.
// GET /api/logs/stream
func (h *LogHandler) Stream(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	lines, ch := h.logs.Follow()
	defer h.logs.Unsubscribe(ch)

	for _, line := range lines {
		writeOutput(c.Writer, line)
	}
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case line, ok := <-ch:
			if !ok {
				return false
			}
			writeOutput(w, line)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

// writeOutput frames line as one output event, one data field per line of
// text.
func writeOutput(w io.Writer, line string) {
	var b strings.Builder
	b.WriteString("event: output\n")
	for _, part := range strings.Split(strings.ReplaceAll(line, "\r\n", "\n"), "\n") {
		b.WriteString("data: ")
		b.WriteString(strings.TrimSuffix(part, "\r"))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	_, _ = io.WriteString(w, b.String())
}
