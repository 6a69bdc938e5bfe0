// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package docs registers the management API's OpenAPI document with
// swaggo/swag, the same registration shape `swag init` writes for
// cmd/cc-backend. The document below is maintained by hand rather than
// generated from handler annotations, since httpapi.Server builds its
// route table from the commandNames slice rather than one function per
// route (spec §6.1: all ten operations share handleCommand's body).
package docs

import (
	"bytes"
	"strings"
	"text/template"

	"github.com/swaggo/swag"
)

type swaggerInfo struct {
	Version     string
	Host        string
	BasePath    string
	Schemes     []string
	Title       string
	Description string
}

// SwaggerInfo's Host is filled in by httpapi.New with the management
// API's actual bind address, the way cc-backend's own generated
// docs.go exposes a package-level var to be patched at startup.
var SwaggerInfo = swaggerInfo{
	Version:     "1.0",
	Host:        "",
	BasePath:    "/",
	Schemes:     []string{"http"},
	Title:       "erddaputil management API",
	Description: "Dataset manager, ACL, cache and metric push operations for an ERDDAP sidecar daemon.",
}

type docReader struct{}

func (docReader) ReadDoc() string {
	info := SwaggerInfo
	info.Description = strings.ReplaceAll(info.Description, "\n", "\\n")

	t, err := template.New("swagger_info").Parse(doc)
	if err != nil {
		return doc
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, info); err != nil {
		return doc
	}
	return buf.String()
}

func init() {
	swag.Register(swag.Name, docReader{})
}

// doc is the hand-authored OpenAPI document for every route
// internal/httpapi/server.go mounts: the ten command routes spec
// §4.3 names (all sharing the same request/response shape), the
// metric push sink (spec §6.3) and the Prometheus scrape endpoint.
var doc = `{
	"swagger": "2.0",
	"info": {
		"description": "{{.Description}}",
		"title": "{{.Title}}",
		"version": "{{.Version}}"
	},
	"host": "{{.Host}}",
	"basePath": "{{.BasePath}}",
	"paths": {
		"/api/reload_dataset": {"post": {"summary": "Reload one or more datasets", "tags": ["datasets"], "parameters": [{"name": "body", "in": "body", "schema": {"$ref": "#/definitions/CommandRequest"}}], "responses": {"200": {"description": "command outcome", "schema": {"$ref": "#/definitions/CommandResult"}}}}},
		"/api/reload_all_datasets": {"post": {"summary": "Reload every active dataset", "tags": ["datasets"], "parameters": [{"name": "body", "in": "body", "schema": {"$ref": "#/definitions/CommandRequest"}}], "responses": {"200": {"description": "command outcome", "schema": {"$ref": "#/definitions/CommandResult"}}}}},
		"/api/set_active_flag": {"post": {"summary": "Set the active flag on one or more datasets", "tags": ["datasets"], "parameters": [{"name": "body", "in": "body", "schema": {"$ref": "#/definitions/CommandRequest"}}], "responses": {"200": {"description": "command outcome", "schema": {"$ref": "#/definitions/CommandResult"}}}}},
		"/api/update_email_block_list": {"post": {"summary": "Update the email block list", "tags": ["acl"], "parameters": [{"name": "body", "in": "body", "schema": {"$ref": "#/definitions/CommandRequest"}}], "responses": {"200": {"description": "command outcome", "schema": {"$ref": "#/definitions/CommandResult"}}}}},
		"/api/update_ip_block_list": {"post": {"summary": "Update the IP block list", "tags": ["acl"], "parameters": [{"name": "body", "in": "body", "schema": {"$ref": "#/definitions/CommandRequest"}}], "responses": {"200": {"description": "command outcome", "schema": {"$ref": "#/definitions/CommandResult"}}}}},
		"/api/update_allow_unlimited_list": {"post": {"summary": "Update the unlimited-allow list", "tags": ["acl"], "parameters": [{"name": "body", "in": "body", "schema": {"$ref": "#/definitions/CommandRequest"}}], "responses": {"200": {"description": "command outcome", "schema": {"$ref": "#/definitions/CommandResult"}}}}},
		"/api/clear_cache": {"post": {"summary": "Clear cached request state", "tags": ["datasets"], "parameters": [{"name": "body", "in": "body", "schema": {"$ref": "#/definitions/CommandRequest"}}], "responses": {"200": {"description": "command outcome", "schema": {"$ref": "#/definitions/CommandResult"}}}}},
		"/api/compile_datasets": {"post": {"summary": "Recompile the datasets.xml document from fragments", "tags": ["datasets"], "parameters": [{"name": "body", "in": "body", "schema": {"$ref": "#/definitions/CommandRequest"}}], "responses": {"200": {"description": "command outcome", "schema": {"$ref": "#/definitions/CommandResult"}}}}},
		"/api/flush": {"post": {"summary": "Flush pending dataset changes immediately", "tags": ["datasets"], "parameters": [{"name": "body", "in": "body", "schema": {"$ref": "#/definitions/CommandRequest"}}], "responses": {"200": {"description": "command outcome", "schema": {"$ref": "#/definitions/CommandResult"}}}}},
		"/api/list_datasets": {"post": {"summary": "List known datasets, one per line", "tags": ["datasets"], "responses": {"200": {"description": "command outcome", "schema": {"$ref": "#/definitions/CommandResult"}}}}},
		"/push": {"post": {"summary": "Push one or more metric samples", "tags": ["metrics"], "parameters": [{"name": "body", "in": "body", "schema": {"$ref": "#/definitions/PushRequest"}}], "responses": {"200": {"description": "push outcome", "schema": {"$ref": "#/definitions/PushResult"}}}}},
		"/metrics": {"get": {"summary": "Prometheus scrape endpoint", "tags": ["metrics"], "responses": {"200": {"description": "text exposition format"}}}}
	},
	"definitions": {
		"CommandRequest": {"type": "object", "additionalProperties": true},
		"CommandResult": {"type": "object", "properties": {"success": {"type": "boolean"}, "message": {}}},
		"PushRequest": {"type": "object", "properties": {"metrics": {"type": "array", "items": {"type": "object"}}}},
		"PushResult": {"type": "object", "properties": {"success": {"type": "boolean"}, "errors": {"type": "array", "items": {"type": "string"}}}}
	}
}`
