// Package log provides a minimal key-value logger used by the layer routing code.
package log

import (
	"fmt"
	"log"
	"strings"
)

// Root is the default logger used when no other logger is configured.
var Root Logger = &Default{}

// Logger is the logger interface. The variadic arguments are key value pairs. The key must be a
// string and the value should have a meaningful string representation.
type Logger interface {
	Debug(string, ...interface{})
	Error(string, ...interface{})
	Crit(string, ...interface{})
	With(...interface{}) Logger
}

// Default logs to the standard library logger with a level prefix.
type Default struct {
	Tags []interface{}
}

func (l *Default) Debug(m string, s ...interface{}) { log.Print(format("DEB ", m, s, l.Tags)) }
func (l *Default) Error(m string, s ...interface{}) { log.Print(format("ERR ", m, s, l.Tags)) }
func (l *Default) Crit(m string, s ...interface{})  { log.Print(format("CRI ", m, s, l.Tags)) }
func (l *Default) With(tags ...interface{}) Logger  { return l.with(tags) }

func (l *Default) with(tags []interface{}) *Default {
	t := make([]interface{}, 0, len(tags)+len(l.Tags))
	t = append(t, tags...)
	t = append(t, l.Tags...)
	return &Default{Tags: t}
}

func format(lvl, msg string, all ...[]interface{}) string {
	var b strings.Builder
	b.WriteString(lvl)
	b.WriteString(msg)
	for _, tags := range all {
		for i, v := range tags {
			if i%2 == 0 {
				b.WriteByte(' ')
			} else {
				b.WriteByte('=')
			}
			fmt.Fprint(&b, v)
		}
	}
	return b.String()
}
