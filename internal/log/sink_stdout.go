package log

import "fmt"

// StdoutSink writes every record to stdout, grounded on the teacher's
// log_sink_stdout.go.
type StdoutSink struct{}

func NewStdoutSink() *StdoutSink { return &StdoutSink{} }

func (s *StdoutSink) Sink(content *Content) {
	fmt.Printf("[%s][%s][%s]%s\n",
		content.Time.Format("2006-01-02 15:04:05.000"),
		LogLevelName[content.Level], content.Location, content.Message)
}

func (s *StdoutSink) Flush() {}
