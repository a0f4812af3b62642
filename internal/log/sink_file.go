package log

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// RotateType selects how often FileSink opens a new file.
type RotateType int

const (
	RotateByDay RotateType = iota
	RotateByHour
)

// FileSink writes every record to a rotating log file, grounded on the
// teacher's log_sink_file.go (FileLogSink).
type FileSink struct {
	prefix     string
	dir        string
	rotate     RotateType
	curFile    *os.File
	curName    string
}

func NewFileSink(prefix, dir string, rotate RotateType) *FileSink {
	if dir == "" {
		dir = "./log/"
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		os.MkdirAll(dir, 0770)
	}
	return &FileSink{prefix: prefix, dir: dir, rotate: rotate}
}

func (s *FileSink) fileName(t time.Time) string {
	switch s.rotate {
	case RotateByHour:
		return fmt.Sprintf("%s_%s.log", s.prefix, t.Format("2006_01_02_15"))
	default:
		return fmt.Sprintf("%s_%s.log", s.prefix, t.Format("2006_01_02"))
	}
}

func (s *FileSink) Sink(content *Content) {
	name := s.fileName(content.Time)
	if s.curName != name {
		if s.curFile != nil {
			s.curFile.Close()
		}
		s.curName = name
		f, err := os.OpenFile(filepath.Join(s.dir, name), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0660)
		if err != nil {
			s.curFile = nil
			return
		}
		s.curFile = f
	}
	if s.curFile == nil {
		return
	}
	output := fmt.Sprintf("[%s][%s][%s]%s\n",
		content.Time.Format("2006-01-02 15:04:05.000"),
		LogLevelName[content.Level], content.Location, content.Message)
	s.curFile.WriteString(output)
}

func (s *FileSink) Flush() {
	if s.curFile != nil {
		s.curFile.Sync()
	}
}
