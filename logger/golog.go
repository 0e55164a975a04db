/*
 * MIT License
 *
 * Copyright (c) 2025 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

package logger

import (
	"io"
	"sync"

	"github.com/sirupsen/logrus"
)

type lgr struct {
	m sync.RWMutex
	l *logrus.Logger
	f Fields
}

// New returns a Logger writing to w (os.Stderr in production, a buffer in
// tests) at InfoLevel.
func New(w io.Writer) Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return &lgr{l: l, f: Fields{}}
}

// Discard returns a Logger that drops every entry; used where the caller
// has logging turned off but code still wants an unconditional Logger to
// call into.
func Discard() Logger {
	return New(io.Discard)
}

func (g *lgr) SetLevel(lvl Level) {
	g.m.Lock()
	defer g.m.Unlock()
	g.l.SetLevel(lvl.logrus())
}

func (g *lgr) GetLevel() Level {
	g.m.RLock()
	defer g.m.RUnlock()
	switch g.l.GetLevel() {
	case logrus.DebugLevel:
		return DebugLevel
	case logrus.WarnLevel:
		return WarnLevel
	case logrus.ErrorLevel:
		return ErrorLevel
	default:
		return InfoLevel
	}
}

func (g *lgr) WithFields(f Fields) Logger {
	g.m.RLock()
	merged := g.f.Clone()
	g.m.RUnlock()

	for k, v := range f {
		merged[k] = v
	}

	return &lgr{l: g.l, f: merged}
}

func (g *lgr) entry(f Fields) *logrus.Entry {
	merged := g.f.Clone()
	for k, v := range f {
		merged[k] = v
	}
	return g.l.WithFields(logrus.Fields(merged))
}

func (g *lgr) Debug(message string, f Fields) { g.entry(f).Debug(message) }
func (g *lgr) Info(message string, f Fields)  { g.entry(f).Info(message) }
func (g *lgr) Warn(message string, f Fields)  { g.entry(f).Warn(message) }

func (g *lgr) Error(message string, err error, f Fields) {
	e := g.entry(f)
	if err != nil {
		e = e.WithError(err)
	}
	e.Error(message)
}
