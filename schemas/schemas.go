// Package schemas carries the embedded JSON Schemas for externally
// authored files.
package schemas

import _ "embed"

// TestCaseSchemaJSON is the JSON Schema for conversation test case files.
//
//go:embed testcase.schema.json
var TestCaseSchemaJSON string
