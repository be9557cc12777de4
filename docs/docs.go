// Package docs registers the portraitd API description with swag. Regenerate
// with `swag init -g cmd/portraitd/docs.go -o docs` after changing annotations.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/settings": {"get": {"summary": "List settings", "produces": ["application/json"], "responses": {"200": {"description": "OK"}}}},
        "/settings/{key}": {"put": {"summary": "Update a setting", "consumes": ["application/json"], "parameters": [{"name": "key", "in": "path", "required": true, "type": "string"}], "responses": {"204": {"description": "No Content"}}}},
        "/presets": {"get": {"summary": "List presets", "produces": ["application/json"], "responses": {"200": {"description": "OK"}}}},
        "/editors": {"post": {"summary": "Open the preset editor", "responses": {"201": {"description": "Created"}}}},
        "/editors/{id}": {
            "get": {"summary": "Preset editor view", "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}], "responses": {"200": {"description": "OK"}}},
            "delete": {"summary": "Close the preset editor without saving", "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}], "responses": {"204": {"description": "No Content"}}}
        },
        "/editors/{id}/commit": {"post": {"summary": "Validate and save every preset row, then close the editor", "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}], "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}}}},
        "/entities/{id}/dialogs": {"post": {"summary": "Open a generation dialog", "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}], "responses": {"201": {"description": "Created"}}}},
        "/dialogs/{id}/generate": {"post": {"summary": "Run the generation pipeline", "produces": ["application/x-ndjson"], "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}], "responses": {"200": {"description": "OK"}}}},
        "/dialogs/{id}/choice": {"post": {"summary": "Answer the pending image choice", "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}], "responses": {"204": {"description": "No Content"}}}},
        "/dialogs/{id}/confirm": {"post": {"summary": "Answer the pending confirmation", "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}], "responses": {"204": {"description": "No Content"}}}}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{"http"},
	Title:            "portraitd API",
	Description:      "Portrait and token image generation for tabletop entities.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
