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

// Package forensicstore stores collected forensic artifacts in a single
// SQLite file. Elements are JSON documents in an fts5 table, file content
// lives in an sqlar table next to them.
package forensicstore

import (
	"crypto/md5"  // #nosec
	"crypto/sha1" // #nosec
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"hash"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"crawshaw.io/sqlite"
	"github.com/fatih/structs"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/tidwall/gjson"

	"github.com/forensicanalysis/artifactcollector/forensicstore/goflatten"
	"github.com/forensicanalysis/artifactcollector/forensicstore/sqlitefs"
	"github.com/forensicanalysis/artifactcollector/internal/logging"
)

const (
	storeVersion  = 2
	applicationID = 1701602669
	discriminator = "type"
)

var (
	// ErrStoreExists is returned by New if the file is already there.
	ErrStoreExists = errors.New("store already exists")
	// ErrStoreNotExists is returned by Open for missing files.
	ErrStoreNotExists = errors.New("store does not exist")
	// ErrElementNotExists is returned by Get for unknown ids.
	ErrElementNotExists = errors.New("element does not exist")
)

// Store is a forensicstore file. It is not safe for concurrent use.
type Store struct {
	fs     *sqlitefs.FS
	cursor *sqlite.Conn
	types  *typeMap
}

// New creates a new store at url.
func New(url string) (*Store, error) {
	return open(url, true)
}

// Open opens an existing store.
func Open(url string) (*Store, error) {
	return open(url, false)
}

func pragma(conn *sqlite.Conn, name string) (int64, error) {
	stmt, err := conn.Prepare("PRAGMA " + name)
	if err != nil {
		return 0, err
	}
	if _, err := stmt.Step(); err != nil {
		return 0, err
	}
	i := stmt.GetInt64(name)
	return i, stmt.Finalize()
}

func setPragma(conn *sqlite.Conn, name string, i int64) error {
	stmt, err := conn.Prepare(fmt.Sprintf("PRAGMA %s = %d", name, i))
	if err != nil {
		return err
	}
	if _, err := stmt.Step(); err != nil {
		return err
	}
	return stmt.Finalize()
}

func open(url string, create bool) (*Store, error) { // nolint:gocyclo
	if url != ":memory:" {
		url = strings.TrimRight(url, "/")

		exists := true
		if _, err := os.Stat(url); err != nil {
			if !os.IsNotExist(err) {
				return nil, err
			}
			exists = false
		}
		if create && exists {
			return nil, errors.Wrap(ErrStoreExists, url)
		}
		if !create && !exists {
			return nil, errors.Wrap(ErrStoreNotExists, url)
		}
		if create {
			if err := os.MkdirAll(filepath.Dir(url), 0750); err != nil {
				return nil, err
			}
			logging.Infof("Creating store %s", url)
		}
	}

	cursor, err := sqlite.OpenConn(url, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "could not open %s", url)
	}
	store := &Store{cursor: cursor, types: newTypeMap()}

	if err := store.setup(create); err != nil {
		cursor.Close() // nolint:errcheck
		return nil, err
	}
	return store, nil
}

func (store *Store) setup(create bool) error {
	var err error
	if create {
		if err = setPragma(store.cursor, "application_id", applicationID); err != nil {
			return err
		}
		if err = setPragma(store.cursor, "user_version", storeVersion); err != nil {
			return err
		}
		err = store.exec("CREATE VIRTUAL TABLE `elements` " +
			"USING fts5(id UNINDEXED, json, insert_time UNINDEXED, tokenize=\"unicode61 tokenchars '/.'\")")
		if err != nil {
			return err
		}
	} else {
		id, err := pragma(store.cursor, "application_id")
		if err != nil {
			return err
		}
		if id != applicationID {
			return fmt.Errorf("wrong file format (application_id is %d, requires %d)", id, applicationID)
		}
		version, err := pragma(store.cursor, "user_version")
		if err != nil {
			return err
		}
		if version != storeVersion {
			return fmt.Errorf("wrong file format (user_version is %d, requires %d)", version, storeVersion)
		}
	}

	store.fs, err = sqlitefs.NewCursor(store.cursor)
	if err != nil {
		return err
	}
	return store.setupTypes()
}

// Fs returns the file area of the store.
func (store *Store) Fs() afero.Fs {
	return store.fs
}

// SetSpool changes where large files are buffered before they are stored.
func (store *Store) SetSpool(fs afero.Fs, dir string, memoryLimit int64) {
	store.fs.SetSpool(fs, dir, memoryLimit)
}

// Insert validates and adds a single element. Elements without id get one
// of the form <type>--<uuid>.
func (store *Store) Insert(element JSONElement) (string, error) {
	nested := Element{}
	if err := json.Unmarshal(element, &nested); err != nil {
		return "", err
	}

	elementType, ok := nested[discriminator].(string)
	if !ok {
		return "", errors.New("element requires type")
	}

	id, ok := nested["id"].(string)
	if !ok {
		id = elementType + "--" + uuid.New().String()
		nested["id"] = id
		var err error
		element, err = json.Marshal(nested)
		if err != nil {
			return "", err
		}
	}

	flaws, err := validateSchema(element)
	if err != nil {
		return "", errors.Wrap(err, "validation failed")
	}
	if len(flaws) > 0 {
		return "", fmt.Errorf("element could not be validated [%s]", strings.Join(flaws, ","))
	}

	flat, err := goflatten.Flatten(nested)
	if err != nil {
		return "", errors.Wrap(err, "could not flatten element")
	}
	if _, ok := flat[elementType]; ok {
		return "", fmt.Errorf("element must not contain a field '%s'", elementType)
	}

	store.types.addAll(elementType, flat)

	stmt, err := store.cursor.Prepare("INSERT INTO `elements` (id, json, insert_time) VALUES ($id, $json, $time)")
	if err != nil {
		return "", errors.Wrap(err, "could not prepare insert")
	}
	stmt.SetText("$id", id)
	stmt.SetText("$json", string(element))
	stmt.SetText("$time", time.Now().UTC().Format("2006-01-02T15:04:05.000Z"))
	if _, err := stmt.Step(); err != nil {
		stmt.Finalize() // nolint:errcheck
		return "", errors.Wrap(err, "could not insert element")
	}
	return id, stmt.Finalize()
}

// InsertStruct converts a struct into an element with snake case field
// names and inserts it. Empty fields are dropped.
func (store *Store) InsertStruct(element interface{}) (string, error) {
	m, ok := lower(structs.Map(element)).(map[string]interface{})
	if !ok {
		return "", errors.New("could not convert struct")
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return store.Insert(b)
}

// Get retrieves a single element.
func (store *Store) Get(id string) (JSONElement, error) {
	stmt, err := store.cursor.Prepare("SELECT json FROM `elements` WHERE id = $id")
	if err != nil {
		return nil, err
	}
	stmt.SetText("$id", id)

	elements, err := rowsToElements(stmt)
	if err != nil {
		return nil, err
	}
	if len(elements) == 0 {
		return nil, errors.Wrap(ErrElementNotExists, id)
	}
	return elements[0], nil
}

// Select returns the elements matching any of the conditions. A condition
// matches if all of its flattened fields are LIKE the given value.
func (store *Store) Select(conditions []map[string]string) ([]JSONElement, error) {
	var ors []string
	var args []string
	for _, condition := range conditions {
		keys := make([]string, 0, len(condition))
		for key := range condition {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		var ands []string
		for _, key := range keys {
			ands = append(ands, "json_extract(json, ?) LIKE ?")
			args = append(args, jsonPath(key), condition[key])
		}
		if len(ands) > 0 {
			ors = append(ors, "("+strings.Join(ands, " AND ")+")")
		}
	}

	query := "SELECT json FROM `elements`"
	if len(ors) > 0 {
		query += " WHERE " + strings.Join(ors, " OR ")
	}

	stmt, err := store.cursor.Prepare(query)
	if err != nil {
		return nil, err
	}
	for i, arg := range args {
		stmt.BindText(i+1, arg)
	}
	return rowsToElements(stmt)
}

// Search runs an fts5 query over all elements.
func (store *Store) Search(q string) ([]JSONElement, error) {
	stmt, err := store.cursor.Prepare("SELECT json FROM `elements` WHERE elements = $query")
	if err != nil {
		return nil, err
	}
	stmt.SetText("$query", q)
	return rowsToElements(stmt)
}

// All returns every element.
func (store *Store) All() ([]JSONElement, error) {
	return store.Select(nil)
}

// StoreFile creates a file in the file area. If filePath is taken, a
// counter is added before the extension.
func (store *Store) StoreFile(filePath string) (storePath string, file io.WriteCloser, err error) {
	filePath = path.Join("/", strings.ReplaceAll(filePath, "\\", "/"))
	if err = store.fs.MkdirAll(path.Dir(filePath), 0755); err != nil {
		return "", nil, err
	}

	ext := path.Ext(filePath)
	base := filePath[:len(filePath)-len(ext)]
	storePath = filePath
	for i := 0; ; i++ {
		exists, err := afero.Exists(store.fs, storePath)
		if err != nil {
			return "", nil, err
		}
		if !exists {
			break
		}
		storePath = fmt.Sprintf("%s_%d%s", base, i, ext)
	}

	file, err = store.fs.Create(storePath)
	return strings.TrimPrefix(storePath, "/"), file, err
}

// LoadFile opens a file from the file area.
func (store *Store) LoadFile(filePath string) (io.ReadCloser, error) {
	return store.fs.Open(filePath)
}

// Close creates a view per element type and closes the database.
func (store *Store) Close() error {
	if store.types.changed {
		if err := store.createViews(); err != nil {
			logging.Warnf("could not create views: %s", err)
		}
	}
	return store.cursor.Close()
}

// jsonPath converts a flattened field like hashes.SHA-256 or values.0.name
// into a JSON path.
func jsonPath(field string) string {
	p := "$"
	for _, part := range strings.Split(field, ".") {
		if _, err := strconv.Atoi(part); err == nil {
			p += "[" + part + "]"
			continue
		}
		p += `."` + part + `"`
	}
	return p
}

func (store *Store) createViews() error {
	for typeName, fields := range store.types.all() {
		if err := store.exec(fmt.Sprintf("DROP VIEW IF EXISTS \"%s\"", typeName)); err != nil {
			return err
		}
		var columns []string
		for field := range fields {
			columns = append(columns, fmt.Sprintf("json_extract(json, '%s') AS \"%s\"", jsonPath(field), field))
		}
		sort.Strings(columns)
		err := store.exec(fmt.Sprintf(
			"CREATE VIEW \"%s\" AS SELECT %s FROM elements WHERE json_extract(json, '$.%s') = '%s'",
			typeName, strings.Join(columns, ", "), discriminator, typeName,
		))
		if err != nil {
			return err
		}
	}
	return nil
}

// Validate checks every element against its schema, compares stored files
// with the referencing elements and verifies sizes and hashes.
func (store *Store) Validate() (flaws []string, err error) {
	flaws = []string{}
	expectedFiles := map[string]bool{}

	elements, err := store.All()
	if err != nil {
		return nil, err
	}
	for _, element := range elements {
		elementFlaws, elementFiles, err := store.validateElement(element)
		if err != nil {
			return nil, err
		}
		flaws = append(flaws, elementFlaws...)
		for _, f := range elementFiles {
			expectedFiles[f] = true
		}
	}

	foundFiles := map[string]bool{}
	var additionalFiles []string
	err = afero.Walk(store.fs, "/", func(p string, info os.FileInfo, err error) error {
		if err != nil || info == nil || info.IsDir() {
			return nil
		}
		p = strings.ReplaceAll(p, "\\", "/")
		foundFiles[p] = true
		if !expectedFiles[p] {
			additionalFiles = append(additionalFiles, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(additionalFiles) > 0 {
		sort.Strings(additionalFiles)
		flaws = append(flaws, fmt.Sprintf("additional files: ('%s')", strings.Join(additionalFiles, "', '")))
	}

	var missingFiles []string
	for f := range expectedFiles {
		if !foundFiles[f] {
			missingFiles = append(missingFiles, f)
		}
	}
	if len(missingFiles) > 0 {
		sort.Strings(missingFiles)
		flaws = append(flaws, fmt.Sprintf("missing files: ('%s')", strings.Join(missingFiles, "', '")))
	}
	return flaws, nil
}

func newHash(algorithm string) hash.Hash {
	switch algorithm {
	case "MD5":
		return md5.New() // #nosec
	case "SHA1", "SHA-1":
		return sha1.New() // #nosec
	case "SHA256", "SHA-256":
		return sha256.New()
	}
	return nil
}

func (store *Store) validateElement(element JSONElement) (flaws []string, expectedFiles []string, err error) { // nolint:gocyclo
	flaws, err = validateSchema(element)
	if err != nil {
		return nil, nil, err
	}

	fields := Element{}
	if err := json.Unmarshal(element, &fields); err != nil {
		return nil, nil, err
	}

	for field, value := range fields {
		exportPath, ok := value.(string)
		if !strings.HasSuffix(field, "_path") || !ok {
			continue
		}
		if strings.Contains(exportPath, "..") {
			flaws = append(flaws, fmt.Sprintf("'..' in %s", exportPath))
			continue
		}
		expectedFiles = append(expectedFiles, "/"+exportPath)

		exists, err := afero.Exists(store.fs, exportPath)
		if err != nil {
			return nil, nil, err
		}
		if !exists {
			continue
		}

		if size := gjson.GetBytes(element, "size"); size.Exists() && field == "export_path" {
			info, err := store.fs.Stat(exportPath)
			if err != nil {
				return nil, nil, err
			}
			if size.Int() != info.Size() {
				flaws = append(flaws, fmt.Sprintf("wrong size for %s (is %d, expected %d)", exportPath, info.Size(), size.Int()))
			}
		}

		if field != "export_path" {
			continue
		}
		hashes, _ := fields["hashes"].(map[string]interface{})
		for algorithm, value := range hashes {
			h := newHash(algorithm)
			if h == nil {
				flaws = append(flaws, fmt.Sprintf("unsupported hash %s for %s", algorithm, exportPath))
				continue
			}
			f, err := store.fs.Open(exportPath)
			if err != nil {
				return nil, nil, err
			}
			_, err = io.Copy(h, f)
			f.Close() // nolint:errcheck
			if err != nil {
				return nil, nil, err
			}
			if fmt.Sprintf("%x", h.Sum(nil)) != value {
				flaws = append(flaws, fmt.Sprintf("hashvalue mismatch %s for %s", algorithm, exportPath))
			}
		}
	}
	return flaws, expectedFiles, nil
}

func rowsToElements(stmt *sqlite.Stmt) ([]JSONElement, error) {
	elements := []JSONElement{}
	for {
		hasRow, err := stmt.Step()
		if err != nil {
			stmt.Finalize() // nolint:errcheck
			return nil, err
		}
		if !hasRow {
			break
		}
		elements = append(elements, JSONElement(stmt.GetText("json")))
	}
	return elements, stmt.Finalize()
}

func isElementTable(name string) bool {
	if strings.HasPrefix(name, "sqlite") || strings.HasPrefix(name, "_") {
		return false
	}
	if name == "sqlar" || name == "elements" {
		return false
	}
	for _, suffix := range []string{"_data", "_idx", "_content", "_docsize", "_config"} {
		if strings.HasSuffix(name, suffix) {
			return false
		}
	}
	return true
}

// setupTypes reads the columns of existing type views.
func (store *Store) setupTypes() error {
	stmt, err := store.cursor.Prepare("SELECT name FROM sqlite_master WHERE type = 'view'")
	if err != nil {
		return err
	}

	var names []string
	for {
		hasRow, err := stmt.Step()
		if err != nil {
			stmt.Finalize() // nolint:errcheck
			return err
		}
		if !hasRow {
			break
		}
		if name := stmt.GetText("name"); isElementTable(name) {
			names = append(names, name)
		}
	}
	if err := stmt.Finalize(); err != nil {
		return err
	}

	for _, name := range names {
		info, err := store.cursor.Prepare(fmt.Sprintf("PRAGMA table_info (\"%s\")", name))
		if err != nil {
			return err
		}
		for {
			hasRow, err := info.Step()
			if err != nil {
				info.Finalize() // nolint:errcheck
				return err
			}
			if !hasRow {
				break
			}
			store.types.add(name, info.GetText("name"))
		}
		if err := info.Finalize(); err != nil {
			return err
		}
	}
	store.types.changed = false
	return nil
}

func (store *Store) exec(query string) error {
	stmt, err := store.cursor.Prepare(query)
	if err != nil {
		return err
	}
	if _, err := stmt.Step(); err != nil {
		stmt.Finalize() // nolint:errcheck
		return err
	}
	return stmt.Finalize()
}
