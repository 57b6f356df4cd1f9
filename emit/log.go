package emit

import (
	"encoding/json"
	"fmt"
	"io"
)

// LogEmitter writes Messages to an io.Writer, either as human-readable
// text or newline-delimited JSON, ported from graph/emit/log.go.
type LogEmitter struct {
	writer  io.Writer
	jsonMode bool
}

// NewLogEmitter returns a LogEmitter writing to w. jsonMode selects JSONL
// output over the default text format.
func NewLogEmitter(w io.Writer, jsonMode bool) *LogEmitter {
	return &LogEmitter{writer: w, jsonMode: jsonMode}
}

func (l *LogEmitter) Emit(msg Message) {
	if l.jsonMode {
		l.emitJSON(msg)
		return
	}
	l.emitText(msg)
}

func (l *LogEmitter) EmitBatch(msgs []Message) {
	for _, m := range msgs {
		l.Emit(m)
	}
}

func (l *LogEmitter) Flush() error { return nil }

func (l *LogEmitter) emitText(msg Message) {
	fmt.Fprintf(l.writer, "[%s] pid=%s tid=%s nid=%s state=%s\n", msg.Type, msg.Pid, msg.Tid, msg.Nid, msg.State)
}

func (l *LogEmitter) emitJSON(msg Message) {
	b, err := json.Marshal(msg)
	if err != nil {
		fmt.Fprintf(l.writer, `{"error":%q}`+"\n", err.Error())
		return
	}
	l.writer.Write(b)
	l.writer.Write([]byte("\n"))
}
