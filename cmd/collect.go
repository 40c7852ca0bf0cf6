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
	"context"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/forensicanalysis/artifactcollector"
	"github.com/forensicanalysis/artifactcollector/artifacts"
	"github.com/forensicanalysis/artifactcollector/fsmanager"
	"github.com/forensicanalysis/artifactcollector/internal/logging"
	"github.com/forensicanalysis/artifactcollector/registryfs"
	"github.com/forensicanalysis/artifactcollector/variables"
)

type collectOptions struct {
	include         []string
	exclude         []string
	directories     []string
	maxSize         string
	output          string
	sha256          bool
	library         bool
	collectRegistry bool
	logLevel        string
}

// Collect is the collect subcommand.
func Collect() *cobra.Command {
	options := collectOptions{}
	collectCmd := &cobra.Command{
		Use:   "collect",
		Short: "Collect forensic artifacts of the running system",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return collect(ctx, options)
		},
	}
	flags := collectCmd.Flags()
	flags.StringSliceVarP(&options.include, "include", "i", nil, "artifacts to collect (default: all)")
	flags.StringSliceVarP(&options.exclude, "exclude", "e", nil, "artifacts to skip")
	flags.StringSliceVarP(&options.directories, "directory", "d", nil, "additional directories with artifact definitions")
	flags.StringVarP(&options.maxSize, "maxsize", "m", "", "do not collect files larger than this (e.g. 10, 2B, 3K, 4M, 5G)")
	flags.StringVarP(&options.output, "output", "o", ".", "directory for the collection")
	flags.BoolVarP(&options.sha256, "sha256", "s", false, "add SHA-256 hashes of collected files")
	flags.BoolVar(&options.library, "library", true, "use the built-in artifact definitions")
	flags.BoolVar(&options.collectRegistry, "collect-registry", false, "collect registry keys and values (enabled by --include)")
	flags.StringVar(&options.logLevel, "log-level", "progress", "console log level (error, warn, progress, info, debug)")
	return collectCmd
}

func loadDefinitions(options collectOptions) ([]artifacts.Definition, error) {
	var definitions []artifacts.Definition
	if options.library {
		library, err := artifacts.Library()
		if err != nil {
			return nil, err
		}
		definitions = append(definitions, library...)
	}
	for _, directory := range options.directories {
		loaded, err := artifacts.LoadDirectory(afero.NewOsFs(), directory)
		if err != nil {
			return nil, err
		}
		definitions = append(definitions, loaded...)
	}
	return definitions, nil
}

func collect(ctx context.Context, options collectOptions) error {
	level, err := logging.ParseLevel(options.logLevel)
	if err != nil {
		return err
	}
	logging.SetLevel(level)

	maxSize, err := artifactcollector.ParseHumanSize(options.maxSize)
	if err != nil {
		return err
	}

	out, err := artifactcollector.NewOutput(options.output, artifactcollector.OutputOptions{
		MaxSize: maxSize,
		SHA256:  options.sha256,
	})
	if err != nil {
		return err
	}
	logging.Progressf("Collecting into %s", out.Dir())

	definitions, err := loadDefinitions(options)
	if err != nil {
		out.Close() // nolint:errcheck
		return err
	}
	registry := artifacts.NewRegistry(definitions...)
	platform := artifacts.Platform()
	selections := registry.Select(artifacts.Options{
		Include:         registry.ResolveGroups(options.include),
		Exclude:         registry.ResolveGroups(options.exclude),
		Platform:        platform,
		CollectRegistry: options.collectRegistry || len(options.include) > 0,
	})

	engine, err := variables.ForHost()
	if err != nil {
		logging.Warnf("Could not read host variables: %s", err)
		engine = variables.New()
	}

	manager, err := fsmanager.New()
	if err != nil {
		out.Close() // nolint:errcheck
		return err
	}

	collector := artifactcollector.NewCollector(platform, engine, manager, registryfs.OpenHive)
	for _, selection := range selections {
		collector.RegisterSource(selection.Definition, selection.Source)
	}
	return collector.Collect(ctx, out)
}
