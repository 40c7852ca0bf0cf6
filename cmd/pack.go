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

package cmd

import (
	"crypto/md5"  // #nosec
	"crypto/sha1" // #nosec
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"github.com/forensicanalysis/artifactcollector/forensicstore"
	"github.com/forensicanalysis/artifactcollector/forensicstore/sqlitefs"
	"github.com/forensicanalysis/artifactcollector/internal/logging"
)

// Pack is the pack subcommand. It adds local files to the file area of a
// forensicstore and records a file element for each of them.
func Pack() *cobra.Command {
	var artifact string
	packCmd := &cobra.Command{
		Use:   "pack <forensicstore> <file>...",
		Short: "Add files to a forensicstore",
		Args:  cobra.MinimumNArgs(2), //nolint:gomnd
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := forensicstore.Open(args[0])
			if errors.Is(err, forensicstore.ErrStoreNotExists) {
				store, err = forensicstore.New(args[0])
			}
			if err != nil {
				return err
			}
			defer store.Close()

			srcFS := afero.NewOsFs()
			for _, arg := range args[1:] {
				fmt.Fprintln(cmd.OutOrStdout(), "pack", filepath.ToSlash(arg))
				if err := packItem(srcFS, store, artifact, arg); err != nil {
					return err
				}
			}
			return nil
		},
	}
	packCmd.Flags().StringVar(&artifact, "artifact", "Packed", "artifact name of the packed files")
	return packCmd
}

// packItem adds the file or directory src and everything below it.
func packItem(srcFS afero.Fs, store *forensicstore.Store, artifact, src string) error {
	return afero.Walk(srcFS, src, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		return packFile(srcFS, store, artifact, p)
	})
}

func packFile(srcFS afero.Fs, store *forensicstore.Store, artifact, src string) error {
	in, err := srcFS.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	storePath, out, err := store.StoreFile(filepath.ToSlash(src))
	if err != nil {
		return err
	}

	md5Hash, sha1Hash := md5.New(), sha1.New() // #nosec
	size, err := io.Copy(io.MultiWriter(out, md5Hash, sha1Hash), in)
	if err != nil {
		out.Close() // nolint:errcheck
		return errors.Wrapf(err, "could not pack %s", src)
	}
	if err := out.Close(); err != nil {
		return err
	}

	origin := src
	if abs, err := filepath.Abs(src); err == nil {
		origin = abs
	}

	file := forensicstore.NewFile()
	file.Artifact = artifact
	file.Name = filepath.Base(src)
	file.Size = float64(size)
	file.ExportPath = storePath
	file.Origin = map[string]interface{}{"path": origin}
	file.Hashes = map[string]interface{}{
		"MD5":   fmt.Sprintf("%x", md5Hash.Sum(nil)),
		"SHA-1": fmt.Sprintf("%x", sha1Hash.Sum(nil)),
	}
	_, err = store.InsertStruct(file)
	return err
}

func copyFile(srcFS, destFS afero.Fs, src, dest string) error {
	if err := destFS.MkdirAll(path.Dir(dest), 0755); err != nil {
		return err
	}
	in, err := srcFS.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := destFS.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close() // nolint:errcheck
		return err
	}
	return out.Close()
}

func first(s string, n int) string {
	if len(s) < n {
		n = len(s)
	}
	return s[:n]
}

func last(s string, n int) string {
	if len(s) < n {
		n = len(s)
	}
	return s[len(s)-n:]
}

func splitExt(filePath string) (nameOnly, ext string) {
	ext = path.Ext(filePath)
	nameOnly = filePath[:len(filePath)-len(ext)]
	return nameOnly, ext
}

func normalizeFilePath(filePath string) string {
	maxLength := 64
	maxSegmentLength := 4
	filePath = strings.TrimLeft(filePath, "/")
	pathSegments := strings.Split(filePath, "/")
	normalizedFilePath := strings.Join(pathSegments, "_")

	// shorten directories to their first letters while too long
	for i := 0; i < len(pathSegments)-1 && len(normalizedFilePath) > maxLength; i++ {
		pathSegments[i] = first(pathSegments[i], maxSegmentLength)
		normalizedFilePath = strings.Join(pathSegments, "_")
	}

	if len(normalizedFilePath) > maxLength {
		nameOnly, ext := splitExt(pathSegments[len(pathSegments)-1])
		pathSegments[len(pathSegments)-1] = first(nameOnly, maxSegmentLength) + ext
		normalizedFilePath = strings.Join(pathSegments, "_")
	}

	return last(normalizedFilePath, maxLength)
}

// Unpack is the unpack subcommand to extract the collected files.
func Unpack() *cobra.Command {
	var prefix bool
	var mode, directory string
	unpackCmd := &cobra.Command{
		Use:   "unpack <forensicstore>",
		Short: "Extract files from the sqlite archive",
		Args:  requireOneStore,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := forensicstore.Open(args[0])
			if err != nil {
				return err
			}
			defer store.Close()

			absolute, err := filepath.Abs(directory)
			if err != nil {
				return err
			}
			srcFS := store.Fs()
			destFS := afero.NewBasePathFs(afero.NewOsFs(), absolute)

			return afero.Walk(srcFS, "/", func(srcPath string, info os.FileInfo, err error) error {
				if err != nil {
					logging.Warnf("%s", err)
				}
				if err != nil || info == nil || info.IsDir() {
					return nil
				}

				fullPath := filepath.ToSlash(srcPath)
				dest, err := destinationPath(fullPath, mode, prefix, store)
				if err != nil {
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "unpack '%s' to '%s'\n", fullPath, dest)
				return copyFile(srcFS, destFS, fullPath, dest)
			})
		},
	}

	usage := `define the export filename and folder structure. can be one of:
folder (e.g. 'C/Users/user/AppData/Local/Google/Chrome/User Data/Default/Extensions/xx/1.11_1/example.json')
compact (e.g. 'C_User_user_AppD_Loca_Goog_Chro_User_Defa_Exte_xx_1.11_exam.json')
basename (e.g. 'example.json')
`
	unpackCmd.Flags().StringVar(&mode, "mode", "compact", usage)
	unpackCmd.Flags().BoolVar(&prefix, "prefix-artifact", true, "create a folder for every artifact (e.g. 'ChromeExtensions/example.json')")
	unpackCmd.Flags().StringVarP(&directory, "directory", "d", ".", "destination folder")
	return unpackCmd
}

func destinationPath(fullPath string, mode string, prefix bool, store *forensicstore.Store) (string, error) {
	var dest string
	switch mode {
	case "basename":
		dest = path.Base(fullPath)
	case "folder":
		dest = strings.TrimPrefix(fullPath, "/")
	default:
		dest = normalizeFilePath(fullPath)
	}

	if prefix {
		artifactName, err := artifactByPath(store, fullPath)
		if err != nil {
			return "", err
		}
		dest = path.Join(artifactName, dest)
	}
	return dest, nil
}

func artifactByPath(store *forensicstore.Store, srcPath string) (string, error) {
	storePath := strings.TrimLeft(srcPath, "/")
	elements, err := store.Select([]map[string]string{
		{"export_path": storePath},
		{"stdout_path": storePath},
	})
	if err != nil {
		return "", err
	}
	if len(elements) > 0 {
		artifact := gjson.GetBytes(elements[0], "artifact")
		if artifact.Exists() {
			return artifact.String(), nil
		}
	}
	return "", nil
}

// Ls is the ls subcommand to list the stored files.
func Ls() *cobra.Command {
	return &cobra.Command{
		Use:   "ls <forensicstore>",
		Short: "List files in the sqlite archive",
		Args:  requireOneStore,
		RunE: func(cmd *cobra.Command, args []string) error {
			fs, err := sqlitefs.New(args[0])
			if err != nil {
				return err
			}
			defer fs.Close()

			return afero.Walk(fs, "/", func(p string, info os.FileInfo, err error) error {
				if err != nil || info.IsDir() {
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), filepath.ToSlash(p))
				return nil
			})
		},
	}
}
