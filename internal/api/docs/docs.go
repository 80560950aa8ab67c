// Package docs embeds the OpenAPI document served at /docs/doc.json.
package docs

import _ "embed"

//go:embed openapi.json
var OpenAPI []byte
