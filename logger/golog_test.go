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

package logger_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	liblog "github.com/sabouaram/dbusproxy/logger"
)

func TestLevelFiltering(t *testing.T) {
	buf := &bytes.Buffer{}
	l := liblog.New(buf)
	l.SetLevel(liblog.WarnLevel)

	l.Info("should not appear", nil)
	if buf.Len() != 0 {
		t.Fatalf("expected no output below level, got %q", buf.String())
	}

	l.Warn("should appear", nil)
	if !strings.Contains(buf.String(), "should appear") {
		t.Fatalf("expected warn entry, got %q", buf.String())
	}
}

func TestWithFieldsMerges(t *testing.T) {
	buf := &bytes.Buffer{}
	base := liblog.New(buf).WithFields(liblog.Fields{"client": "c1"})
	base.Error("boom", errors.New("denied"), liblog.Fields{"serial": uint32(5)})

	out := buf.String()
	for _, want := range []string{"client=c1", "serial=5", "boom", "denied"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected output to contain %q, got %q", want, out)
		}
	}
}

func TestDiscardProducesNoOutput(t *testing.T) {
	l := liblog.Discard()
	l.Info("ignored", liblog.Fields{"x": 1})
}
