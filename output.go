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

package artifactcollector

import (
	"crypto/md5"  // #nosec
	"crypto/sha1" // #nosec
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/imdario/mergo"
	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/forensicanalysis/artifactcollector/forensicstore"
	"github.com/forensicanalysis/artifactcollector/forensicstore/sqlitefs"
	"github.com/forensicanalysis/artifactcollector/internal/logging"
	"github.com/forensicanalysis/artifactcollector/registryfs"
	"github.com/forensicanalysis/artifactcollector/vfs"
)

// registry value types known to the windows-registry-key element
var dataTypes = map[string]bool{
	"REG_NONE":                       true,
	"REG_SZ":                         true,
	"REG_EXPAND_SZ":                  true,
	"REG_BINARY":                     true,
	"REG_DWORD":                      true,
	"REG_DWORD_BIG_ENDIAN":           true,
	"REG_LINK":                       true,
	"REG_MULTI_SZ":                   true,
	"REG_RESOURCE_LIST":              true,
	"REG_FULL_RESOURCE_DESCRIPTION":  true,
	"REG_RESOURCE_REQUIREMENTS_LIST": true,
	"REG_QWORD":                      true,
	"REG_INVALID_TYPE":               true,
}

// OutputOptions configure an Output. Zero values are replaced by defaults.
type OutputOptions struct {
	// MaxSize skips files larger than MaxSize bytes. 0 disables the limit.
	MaxSize int64
	// SHA256 adds SHA-256 hashes to the collected files.
	SHA256 bool
	// Hostname names the output files.
	Hostname string
	// TempDir and MemoryLimit control spooling of large files.
	TempDir     string
	MemoryLimit int64
	// LogLevel of the log file inside the output folder.
	LogLevel logging.Level
}

func defaultOutputOptions() OutputOptions {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return OutputOptions{
		Hostname:    hostname,
		TempDir:     os.TempDir(),
		MemoryLimit: sqlitefs.DefaultMemoryLimit,
		LogLevel:    logging.LevelInfo,
	}
}

type registryGroup struct {
	artifact string
	key      string
}

// Output writes collected artifacts into a forensicstore inside a folder
// named after the time of the collection and the host.
type Output struct {
	options OutputOptions
	dir     string
	store   *forensicstore.Store
	logFile *os.File
	closed  bool

	collected     map[string]bool
	registry      map[registryGroup]*forensicstore.RegistryKey
	registryOrder []registryGroup
}

// NewOutput creates <dir>/<timestamp>-<host>/ with the store and the log
// file of the collection.
func NewOutput(dir string, options OutputOptions) (*Output, error) {
	if err := mergo.Merge(&options, defaultOutputOptions()); err != nil {
		return nil, err
	}

	now := time.Now().Format("20060102150405")
	dir = filepath.Join(dir, fmt.Sprintf("%s-%s", now, options.Hostname))
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, errors.Wrapf(err, "could not create %s", dir)
	}

	logFile, err := os.OpenFile(filepath.Join(dir, options.Hostname+"-logs.txt"), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return nil, errors.Wrap(err, "could not create log file")
	}
	logging.AddOutput(logFile, options.LogLevel)

	store, err := forensicstore.New(filepath.Join(dir, options.Hostname+".forensicstore"))
	if err != nil {
		logging.RemoveOutput(logFile)
		logFile.Close() // nolint:errcheck
		return nil, err
	}
	store.SetSpool(afero.NewOsFs(), options.TempDir, options.MemoryLimit)

	return &Output{
		options:   options,
		dir:       dir,
		store:     store,
		logFile:   logFile,
		collected: map[string]bool{},
		registry:  map[registryGroup]*forensicstore.RegistryKey{},
	}, nil
}

// Dir returns the folder of the collection.
func (o *Output) Dir() string {
	return o.dir
}

// Store returns the forensicstore the output writes to.
func (o *Output) Store() *forensicstore.Store {
	return o.store
}

// AddCollectedFile copies the content of node into the store and adds a
// file element. Directories only get a directory element.
func (o *Output) AddCollectedFile(artifact string, node *vfs.Node) error {
	fs := node.Filesystem()
	absolute := vfs.AbsolutePath(node)

	if fs.IsDirectory(node) && !fs.IsFile(node) {
		return o.addDirectory(artifact, absolute)
	}

	logging.Infof("Collecting file '%s' for artifact '%s'", absolute, artifact)

	size, err := fs.Size(node)
	if err != nil {
		return errors.Wrapf(err, "could not get size of %s", absolute)
	}
	if o.options.MaxSize > 0 && size > o.options.MaxSize {
		logging.Warnf("Ignoring file '%s' because of its size", absolute)
		return nil
	}

	filename := NormalizeFilePath(absolute)
	if o.collected[filename] {
		return nil
	}
	o.collected[filename] = true

	file := forensicstore.NewFile()
	file.Artifact = artifact
	file.Name = node.Name()
	file.Origin = map[string]interface{}{"path": absolute}

	storePath, w, err := o.store.StoreFile(filename)
	if err != nil {
		return errors.Wrapf(err, "could not store %s", absolute)
	}
	file.ExportPath = storePath

	written, hashes, readErr := o.copyChunks(w, node)
	if readErr != nil {
		file.AddError(fmt.Sprintf("could not read %s: %s", absolute, readErr))
	}
	if err := w.Close(); err != nil {
		return errors.Wrapf(err, "could not write %s", storePath)
	}

	file.Size = float64(written)
	file.Hashes = hashes
	if o.options.SHA256 {
		logging.Infof("File '%s' has SHA-256 '%s'", absolute, hashes["SHA-256"])
	}

	_, err = o.store.InsertStruct(file)
	return err
}

// AddCollectedFileInfo adds a file element with the size and hashes of node
// without storing its content.
func (o *Output) AddCollectedFileInfo(artifact string, node *vfs.Node) error {
	fs := node.Filesystem()
	absolute := vfs.AbsolutePath(node)

	if fs.IsDirectory(node) && !fs.IsFile(node) {
		return o.addDirectory(artifact, absolute)
	}

	logging.Infof("Collecting file info '%s' for artifact '%s'", absolute, artifact)

	file := forensicstore.NewFile()
	file.Artifact = artifact
	file.Name = node.Name()
	file.Origin = map[string]interface{}{"path": absolute}

	written, hashes, err := o.copyChunks(io.Discard, node)
	if err != nil {
		file.AddError(fmt.Sprintf("could not read %s: %s", absolute, err))
	}
	file.Size = float64(written)
	file.Hashes = hashes

	_, err = o.store.InsertStruct(file)
	return err
}

func (o *Output) addDirectory(artifact, absolute string) error {
	if o.collected[absolute+"/"] {
		return nil
	}
	o.collected[absolute+"/"] = true

	logging.Infof("Collecting directory '%s' for artifact '%s'", absolute, artifact)
	directory := forensicstore.NewDirectory()
	directory.Artifact = artifact
	directory.Path = absolute
	_, err := o.store.InsertStruct(directory)
	return err
}

func (o *Output) copyChunks(w io.Writer, node *vfs.Node) (int64, map[string]interface{}, error) {
	hashers := map[string]hash.Hash{
		"MD5":   md5.New(),  // #nosec
		"SHA-1": sha1.New(), // #nosec
	}
	if o.options.SHA256 {
		hashers["SHA-256"] = sha256.New()
	}
	writers := []io.Writer{w}
	for _, h := range hashers {
		writers = append(writers, h)
	}
	dest := io.MultiWriter(writers...)

	var written int64
	var readErr error
	for chunk, err := range node.Filesystem().ReadChunks(node) {
		if err != nil {
			readErr = err
			break
		}
		n, err := dest.Write(chunk)
		written += int64(n)
		if err != nil {
			readErr = err
			break
		}
	}

	hashes := map[string]interface{}{}
	for name, h := range hashers {
		hashes[name] = hex.EncodeToString(h.Sum(nil))
	}
	return written, hashes, readErr
}

// AddCollectedRegistryValue adds a value to the windows-registry-key element
// of key. The elements are written on Close.
func (o *Output) AddCollectedRegistryValue(artifact, key, name string, value interface{}, valueType string) error {
	logging.Infof("Collecting Reg value '%s' from '%s' for artifact '%s'", name, key, artifact)

	group := registryGroup{artifact: artifact, key: key}
	element, ok := o.registry[group]
	if !ok {
		element = forensicstore.NewRegistryKey()
		element.Artifact = artifact
		element.Key = key
		o.registry[group] = element
		o.registryOrder = append(o.registryOrder, group)
	}

	element.Values = append(element.Values, forensicstore.RegistryValue{
		Name:     name,
		Data:     registryData(value),
		DataType: registryDataType(valueType),
	})
	return nil
}

func registryData(value interface{}) string {
	switch v := registryfs.Normalize(value).(type) {
	case nil:
		return ""
	case string:
		return v
	case []string:
		return strings.Join(v, " ")
	default:
		return fmt.Sprint(v)
	}
}

func registryDataType(valueType string) string {
	if valueType == "REG_FULL_RESOURCE_DESCRIPTOR" {
		return "REG_FULL_RESOURCE_DESCRIPTION"
	}
	if dataTypes[valueType] {
		return valueType
	}
	return "REG_NONE"
}

// AddCollectedCommand stores the output of command and adds a process
// element.
func (o *Output) AddCollectedCommand(artifact, command string, output io.Reader) error {
	logging.Infof("Collecting command '%s' for artifact '%s'", command, artifact)

	process := forensicstore.NewProcess()
	process.Artifact = artifact
	process.CommandLine = command
	process.CreatedTime = time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	fields := strings.Fields(command)
	if len(fields) > 0 {
		process.Name = fields[0]
		for _, arg := range fields[1:] {
			process.Arguments = append(process.Arguments, arg)
		}
	}
	if cwd, err := os.Getwd(); err == nil {
		process.Cwd = cwd
	}

	storePath, w, err := o.store.StoreFile(filepath.Join(artifact, "stdout"))
	if err != nil {
		return errors.Wrapf(err, "could not store output of %s", command)
	}
	if _, err := io.Copy(w, output); err != nil {
		process.AddError(fmt.Sprintf("could not read output of %s: %s", command, err))
	}
	if err := w.Close(); err != nil {
		return errors.Wrapf(err, "could not write %s", storePath)
	}
	process.StdoutPath = storePath

	_, err = o.store.InsertStruct(process)
	return err
}

// Close writes the pending registry elements, closes the store and stops
// logging into the output folder.
func (o *Output) Close() error {
	if o.closed {
		return nil
	}
	o.closed = true

	var firstErr error
	for _, group := range o.registryOrder {
		if _, err := o.store.InsertStruct(o.registry[group]); err != nil && firstErr == nil {
			firstErr = errors.Wrapf(err, "could not insert %s", group.key)
		}
	}
	o.registry = map[registryGroup]*forensicstore.RegistryKey{}
	o.registryOrder = nil

	if err := o.store.Close(); err != nil && firstErr == nil {
		firstErr = err
	}

	logging.RemoveOutput(o.logFile)
	if err := o.logFile.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// ParseHumanSize converts sizes like 10, 2B, 3K, 4M or 5G into bytes. The
// empty string is 0.
func ParseHumanSize(size string) (int64, error) {
	if size == "" {
		return 0, nil
	}
	units := map[byte]int64{
		'B': 1,
		'K': 1024,
		'M': 1024 * 1024,
		'G': 1024 * 1024 * 1024,
	}

	multiplier := int64(1)
	if unit, ok := units[size[len(size)-1]]; ok {
		multiplier = unit
		size = size[:len(size)-1]
	}
	i, err := strconv.ParseInt(size, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid size %s", size)
	}
	return i * multiplier, nil
}

// NormalizeFilePath converts an absolute path into a path inside the store.
// The colon behind a drive letter is removed and invalid UTF-8 bytes are
// escaped.
func NormalizeFilePath(filePath string) string {
	filePath = strings.ReplaceAll(filePath, "\\", "/")
	if strings.Index(filePath, "/") > 0 {
		filePath = strings.Replace(filePath, ":", "", 1)
	}

	if utf8.ValidString(filePath) {
		return filePath
	}
	var b strings.Builder
	for i := 0; i < len(filePath); {
		r, size := utf8.DecodeRuneInString(filePath[i:])
		if r == utf8.RuneError && size == 1 {
			fmt.Fprintf(&b, "\\x%02x", filePath[i])
		} else {
			b.WriteRune(r)
		}
		i += size
	}
	return b.String()
}
