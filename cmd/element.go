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
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/forensicanalysis/artifactcollector/forensicstore"
	"github.com/forensicanalysis/artifactcollector/forensicstore/goflatten"
)

func printElements(w io.Writer, elements []forensicstore.JSONElement) error {
	raw := make([]json.RawMessage, 0, len(elements))
	for _, element := range elements {
		raw = append(raw, json.RawMessage(element))
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", b)
	return err
}

func getCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id> <forensicstore>",
		Short: "Retrieve a single element",
		Args:  cobra.ExactArgs(2), //nolint:gomnd
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := forensicstore.Open(args[1])
			if err != nil {
				return err
			}
			defer store.Close()

			element, err := store.Get(args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\n", element)
			return err
		},
	}
}

func selectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "select <type> [<field>=<value>...] <forensicstore>",
		Short: "Retrieve all elements of a type",
		Args:  cobra.MinimumNArgs(2), //nolint:gomnd
		RunE: func(cmd *cobra.Command, args []string) error {
			condition := map[string]string{"type": args[0]}
			for _, pair := range args[1 : len(args)-1] {
				parts := strings.SplitN(pair, "=", 2)
				if len(parts) != 2 {
					return errors.Errorf("invalid condition %s", pair)
				}
				condition[parts[0]] = parts[1]
			}

			store, err := forensicstore.Open(args[len(args)-1])
			if err != nil {
				return err
			}
			defer store.Close()

			elements, err := store.Select([]map[string]string{condition})
			if err != nil {
				return err
			}
			return printElements(cmd.OutOrStdout(), elements)
		},
	}
}

func allCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "all <forensicstore>",
		Short: "Retrieve all elements",
		Args:  cobra.ExactArgs(1), //nolint:gomnd
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := forensicstore.Open(args[0])
			if err != nil {
				return err
			}
			defer store.Close()

			elements, err := store.All()
			if err != nil {
				return err
			}
			return printElements(cmd.OutOrStdout(), elements)
		},
	}
}

func searchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "search <query> <forensicstore>",
		Short: "Full text search over all elements",
		Args:  cobra.ExactArgs(2), //nolint:gomnd
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := forensicstore.Open(args[1])
			if err != nil {
				return err
			}
			defer store.Close()

			elements, err := store.Search(args[0])
			if err != nil {
				return err
			}
			return printElements(cmd.OutOrStdout(), elements)
		},
	}
}

// parseElement reads a JSON object or a list of field=value pairs with
// dotted fields like origin.path=/etc/hosts.
func parseElement(args []string) (forensicstore.JSONElement, error) {
	if len(args) == 1 && strings.HasPrefix(strings.TrimSpace(args[0]), "{") {
		element := map[string]interface{}{}
		if err := json.Unmarshal([]byte(args[0]), &element); err != nil {
			return nil, err
		}
		return json.Marshal(element)
	}

	flat := map[string]interface{}{}
	for _, pair := range args {
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 {
			return nil, errors.Errorf("invalid field %s", pair)
		}
		flat[parts[0]] = parts[1]
	}
	element, err := goflatten.Unflatten(flat)
	if err != nil {
		return nil, err
	}
	return json.Marshal(element)
}

func insertCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "insert <json>|<field>=<value>... <forensicstore>",
		Short: "Insert an element",
		Args:  cobra.MinimumNArgs(2), //nolint:gomnd
		RunE: func(cmd *cobra.Command, args []string) error {
			element, err := parseElement(args[:len(args)-1])
			if err != nil {
				return err
			}

			store, err := forensicstore.Open(args[len(args)-1])
			if err != nil {
				return err
			}
			defer store.Close()

			elementID, err := store.Insert(element)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\n", elementID)
			return err
		},
	}
}
