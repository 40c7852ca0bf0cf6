// Copyright (c) 2020 Siemens AG
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies of
// the Software, and to permit persons to whom the Software is furnished to do so,
// subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY, FITNESS
// FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR
// COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
// IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
// CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
//
// Author(s): Jonas Plum

package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLogger_levels(t *testing.T) {
	tests := []struct {
		name     string
		level    Level
		log      func(l *Logger)
		wantText string
		wantNone bool
	}{
		{"error at progress", LevelProgress, func(l *Logger) { l.Errorf("broken %d", 1) }, "[ERROR] broken 1", false},
		{"progress at progress", LevelProgress, func(l *Logger) { l.Progressf("collecting") }, "[PROGRESS] collecting", false},
		{"info at progress", LevelProgress, func(l *Logger) { l.Infof("details") }, "", true},
		{"debug at debug", LevelDebug, func(l *Logger) { l.Debugf("x") }, "[DEBUG] x", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			l := New(buf, tt.level)
			tt.log(l)
			if tt.wantNone {
				assert.Empty(t, buf.String())
				return
			}
			assert.Contains(t, buf.String(), tt.wantText)
		})
	}
}

func TestLogger_AddOutput(t *testing.T) {
	console := &bytes.Buffer{}
	file := &bytes.Buffer{}

	l := New(console, LevelProgress)
	l.AddOutput(file, LevelInfo)

	l.Infof("only in file")
	l.Warnf("everywhere")

	assert.NotContains(t, console.String(), "only in file")
	assert.Contains(t, console.String(), "everywhere")
	assert.Contains(t, file.String(), "only in file")
	assert.Contains(t, file.String(), "everywhere")
}

func TestLogger_RemoveOutput(t *testing.T) {
	console := &bytes.Buffer{}
	file := &bytes.Buffer{}

	l := New(console, LevelInfo)
	l.AddOutput(file, LevelInfo)
	l.RemoveOutput(file)
	l.Infof("after")

	assert.Contains(t, console.String(), "after")
	assert.Empty(t, file.String())
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    Level
		wantErr bool
	}{
		{"lower", "info", LevelInfo, false},
		{"upper", "DEBUG", LevelDebug, false},
		{"progress", "Progress", LevelProgress, false},
		{"unknown", "verbose", LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseLevel() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}
