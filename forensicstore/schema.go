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

package forensicstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/qri-io/jsonschema"
	"github.com/tidwall/gjson"

	"github.com/forensicanalysis/artifactcollector/internal/logging"
	"github.com/forensicanalysis/stixgo"
)

const schemaURL = "http://raw.githubusercontent.com/oasis-open/cti-stix2-json-schemas/stix2.1/schemas/observables/%s.json"

var schemaSetup sync.Once

// setupSchemaValidation registers the STIX schemas converted to draft
// 2019-09 in the global schema registry.
func setupSchemaValidation() {
	registry := jsonschema.GetSchemaRegistry()
	for name, content := range stixgo.FS {
		content = bytes.ReplaceAll(content, []byte(`"definitions"`), []byte(`"$defs"`))
		content = bytes.ReplaceAll(content, []byte(`"#/definitions/`), []byte(`"#/$defs/`))
		content = bytes.ReplaceAll(content,
			[]byte(`"$schema": "http://json-schema.org/draft-07/schema#",`),
			[]byte(`"$schema": "https://json-schema.org/draft/2019-09/schema#",`),
		)

		schema := &jsonschema.Schema{}
		if err := json.Unmarshal(content, schema); err != nil {
			logging.Errorf("could not load schema %s: %s", name, err)
			continue
		}
		id, ok := schema.JSONProp("$id").(*jsonschema.ID)
		if !ok || id == nil {
			continue
		}
		schema.Resolve(nil, string(*id))
		registry.Register(schema)
	}
}

// validateSchema returns the schema violations of element. Types without a
// STIX schema only need a type.
func validateSchema(element JSONElement) (flaws []string, err error) {
	schemaSetup.Do(setupSchemaValidation)

	elementType := gjson.GetBytes(element, discriminator)
	if !elementType.Exists() {
		return []string{"element needs to have a type"}, nil
	}

	schema := jsonschema.GetSchemaRegistry().GetKnown(fmt.Sprintf(schemaURL, elementType.String()))
	if schema == nil {
		return nil, nil
	}

	errs, err := schema.ValidateBytes(context.Background(), element)
	if err != nil {
		return nil, err
	}
	for _, verr := range errs {
		flaws = append(flaws, fmt.Sprintf("failed to validate element: %s", verr))
	}
	return flaws, nil
}
