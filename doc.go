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

// Package artifactcollector collects forensic artifacts from a live system.
//
// Artifact definitions describe files, registry keys and values and commands.
// A Collector expands the host variables in their sources, resolves the
// resulting path patterns on the backend of the covering mountpoint and
// hands every match to a Sink.
//
// The output
//
// Output implements the Sink and writes a folder per collection:
//     20200101120000-host/
//     ├── host.forensicstore
//     └── host-logs.txt
//
// The forensicstore is a single SQLite file. It contains one JSON element per
// collected file, directory, registry key and process and an sqlar table
// with the content of the collected files and command outputs. Elements
// reference stored content by fields ending in _path, e.g. export_path and
// stdout_path.
package artifactcollector
