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

// Package main implements the artifactcollector command line tool.
//     collect   Collect forensic artifacts of the running system
//     ls        List the files of a forensicstore
//     unpack    Extract the files of a forensicstore
//     pack      Add files to a forensicstore
//     validate  Validate a forensicstore
//     element   Inspect and edit the elements of a forensicstore
//
// Usage
//
// Collect all artifacts for this system into the current directory
//     artifactcollector collect
// Collect selected artifacts and skip large files
//     artifactcollector collect -i WindowsEventLogs,BrowserHistory -m 100M -o /mnt/usb
// Inspect the result
//     artifactcollector element select file 20200101120000-host/host.forensicstore
//     artifactcollector unpack --mode folder 20200101120000-host/host.forensicstore
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/forensicanalysis/artifactcollector/cmd"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	rootCmd := &cobra.Command{
		Use:          "artifactcollector",
		Short:        "Collect forensic artifacts",
		SilenceUsage: true,
	}
	rootCmd.AddCommand(cmd.Collect(), cmd.Ls(), cmd.Unpack(), cmd.Pack(), cmd.Validate(), cmd.Element())
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println("Error:", err)
		stop()
		os.Exit(1)
	}
}
