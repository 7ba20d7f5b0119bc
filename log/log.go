// Package log provides a small leveled logger used throughout zerorpc-go.
//
// It follows RFC5424 severity levels and wraps the standard library's
// log package rather than pulling in a third-party logging framework,
// matching the style of the SDKs this package is modeled after.
package log

import (
	"fmt"
	"io"
	"io/ioutil"
	"log"
	"os"
	"time"
)

// Severity levels, following RFC5424.
const (
	EMERGENCY = iota
	ALERT
	CRITICAL
	ERROR
	WARNING
	NOTICE
	INFO
	DEBUG
)

var levelNames = map[int]string{
	EMERGENCY: "EMERGENCY",
	ALERT:     "ALERT",
	CRITICAL:  "CRITICAL",
	ERROR:     "ERROR",
	WARNING:   "WARNING",
	NOTICE:    "NOTICE",
	INFO:      "INFO",
	DEBUG:     "DEBUG",
}

func init() {
	log.SetPrefix("")
	log.SetFlags(0)
}

var currentLevel = INFO

// SetLevel changes the level below which messages are discarded.
func SetLevel(level int) {
	currentLevel = level
}

// GetLevel returns the current log level.
func GetLevel() int {
	return currentLevel
}

// SetOutput changes the logging output.
func SetOutput(w io.Writer) {
	log.SetOutput(w)
}

// Disable silences all log output.
func Disable() {
	log.SetOutput(ioutil.Discard)
}

// Enable sends log output to stdout.
func Enable() {
	log.SetOutput(os.Stdout)
}

func prefix(level int) string {
	ts := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	return fmt.Sprintf("%s [%s] [zerorpc]", ts, levelNames[level])
}

// Log writes a message at the given level if it is not filtered out.
func Log(level int, v ...interface{}) {
	if level <= currentLevel {
		log.Println(prefix(level), fmt.Sprint(v...))
	}
}

// Logf writes a formatted message at the given level.
func Logf(level int, format string, v ...interface{}) {
	if level <= currentLevel {
		log.Println(prefix(level), fmt.Sprintf(format, v...))
	}
}

func Emergency(v ...interface{})                 { Log(EMERGENCY, v...) }
func Emergencyf(f string, v ...interface{})       { Logf(EMERGENCY, f, v...) }
func Alert(v ...interface{})                      { Log(ALERT, v...) }
func Alertf(f string, v ...interface{})           { Logf(ALERT, f, v...) }
func Critical(v ...interface{})                   { Log(CRITICAL, v...) }
func Criticalf(f string, v ...interface{})        { Logf(CRITICAL, f, v...) }
func Error(v ...interface{})                      { Log(ERROR, v...) }
func Errorf(f string, v ...interface{})           { Logf(ERROR, f, v...) }
func Warning(v ...interface{})                    { Log(WARNING, v...) }
func Warningf(f string, v ...interface{})         { Logf(WARNING, f, v...) }
func Notice(v ...interface{})                     { Log(NOTICE, v...) }
func Noticef(f string, v ...interface{})          { Logf(NOTICE, f, v...) }
func Info(v ...interface{})                       { Log(INFO, v...) }
func Infof(f string, v ...interface{})            { Logf(INFO, f, v...) }
func Debug(v ...interface{})                      { Log(DEBUG, v...) }
func Debugf(f string, v ...interface{})           { Logf(DEBUG, f, v...) }

// NewChannelLogger returns a logger that tags every message with the
// given channel/message id, so interleaved goroutine output stays
// attributable to one logical conversation.
func NewChannelLogger(channelID string) ChannelLogger {
	if channelID == "" {
		channelID = "-"
	}
	return ChannelLogger{id: channelID, suffix: fmt.Sprintf(" |%s|", channelID)}
}

// ChannelLogger is a Logger tagged with a channel id.
type ChannelLogger struct {
	id     string
	suffix string
}

// ID returns the channel id this logger is tagged with.
func (c ChannelLogger) ID() string { return c.id }

func (c ChannelLogger) Log(level int, v ...interface{}) { Log(level, append(v, c.suffix)...) }

func (c ChannelLogger) Emergency(v ...interface{})           { Emergency(append(v, c.suffix)...) }
func (c ChannelLogger) Emergencyf(f string, v ...interface{}) { Emergencyf(f+c.suffix, v...) }
func (c ChannelLogger) Alert(v ...interface{})               { Alert(append(v, c.suffix)...) }
func (c ChannelLogger) Alertf(f string, v ...interface{})     { Alertf(f+c.suffix, v...) }
func (c ChannelLogger) Critical(v ...interface{})            { Critical(append(v, c.suffix)...) }
func (c ChannelLogger) Criticalf(f string, v ...interface{})  { Criticalf(f+c.suffix, v...) }
func (c ChannelLogger) Error(v ...interface{})               { Error(append(v, c.suffix)...) }
func (c ChannelLogger) Errorf(f string, v ...interface{})     { Errorf(f+c.suffix, v...) }
func (c ChannelLogger) Warning(v ...interface{})             { Warning(append(v, c.suffix)...) }
func (c ChannelLogger) Warningf(f string, v ...interface{})   { Warningf(f+c.suffix, v...) }
func (c ChannelLogger) Notice(v ...interface{})              { Notice(append(v, c.suffix)...) }
func (c ChannelLogger) Noticef(f string, v ...interface{})    { Noticef(f+c.suffix, v...) }
func (c ChannelLogger) Info(v ...interface{})                { Info(append(v, c.suffix)...) }
func (c ChannelLogger) Infof(f string, v ...interface{})      { Infof(f+c.suffix, v...) }
func (c ChannelLogger) Debug(v ...interface{})               { Debug(append(v, c.suffix)...) }
func (c ChannelLogger) Debugf(f string, v ...interface{})     { Debugf(f+c.suffix, v...) }
