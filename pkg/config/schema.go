// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import "github.com/invopop/jsonschema"

// Schema reflects the configuration structure into a JSON Schema. The
// schema command and the management API both serve it so dashboards can
// generate settings forms.
func Schema() *jsonschema.Schema {
	reflector := &jsonschema.Reflector{
		// Reject unknown properties, mirroring the loader's strict
		// validation.
		AllowAdditionalProperties: false,
		// Inline all definitions (no $ref) for form-generator
		// compatibility.
		DoNotReference: true,
		// Property names must match the yaml keys the loader accepts.
		FieldNameTag: "yaml",
	}

	schema := reflector.Reflect(&Config{})
	schema.ID = "https://github.com/kadirpekel/codegate/schemas/config.json"
	schema.Title = "CodeGate Configuration Schema"
	schema.Description = "Complete configuration schema for the CodeGate gateway"
	schema.Version = "http://json-schema.org/draft-07/schema#"
	return schema
}
