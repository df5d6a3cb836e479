package httpapi

import "github.com/swaggo/swag"

// apiDoc describes the JSON API in Swagger 2.0 form. It is served at
// /swagger/doc.json and browsed at /swagger/index.html.
var apiDoc = &swag.Spec{
	Version:          "1.0",
	BasePath:         "/api",
	Schemes:          []string{"http"},
	Title:            "Invoice editor API",
	Description:      "Local single-user API over the invoice editor session.",
	InfoInstanceName: swag.Name,
	SwaggerTemplate:  docTemplate,
}

func init() {
	swag.Register(apiDoc.InstanceName(), apiDoc)
}

const docTemplate = `{
  "swagger": "2.0",
  "info": {
    "title": "{{.Title}}",
    "description": "{{escape .Description}}",
    "version": "{{.Version}}"
  },
  "basePath": "{{.BasePath}}",
  "schemes": {{ marshal .Schemes }},
  "consumes": ["application/json"],
  "produces": ["application/json"],
  "paths": {
    "/invoice": {
      "get": {"summary": "Current invoice with totals", "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/InvoiceResponse"}}}},
      "put": {"summary": "Replace the invoice with a normalized record", "parameters": [{"in": "body", "name": "invoice", "schema": {"type": "object"}}], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/InvoiceResponse"}}}}
    },
    "/invoice/reset": {"post": {"summary": "Start a new empty invoice", "responses": {"200": {"description": "OK"}}}},
    "/invoice/totals": {"get": {"summary": "Subtotal, tax, discount and total", "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/Totals"}}}}},
    "/invoice/fields/{field}": {
      "put": {
        "summary": "Change one field",
        "parameters": [
          {"in": "path", "name": "field", "required": true, "type": "string", "description": "e.g. meta.taxRate, client.email"},
          {"in": "body", "name": "value", "schema": {"type": "object", "properties": {"value": {}}}}
        ],
        "responses": {"200": {"description": "OK"}, "400": {"description": "Unknown field or invalid value"}}
      }
    },
    "/invoice/items": {"post": {"summary": "Append a blank line item", "responses": {"201": {"description": "Created", "schema": {"$ref": "#/definitions/LineItem"}}}}},
    "/invoice/items/{id}": {
      "patch": {"summary": "Change a line item", "parameters": [{"in": "path", "name": "id", "required": true, "type": "string"}, {"in": "body", "name": "patch", "schema": {"$ref": "#/definitions/ItemPatch"}}], "responses": {"200": {"description": "OK"}}},
      "delete": {"summary": "Remove a line item", "parameters": [{"in": "path", "name": "id", "required": true, "type": "string"}], "responses": {"200": {"description": "OK"}}}
    },
    "/invoice/number": {"post": {"summary": "Assign the next date-scoped number", "responses": {"200": {"description": "OK"}}}},
    "/invoice/status": {"put": {"summary": "Set the status", "parameters": [{"in": "body", "name": "status", "schema": {"type": "object", "properties": {"status": {"type": "string", "enum": ["draft", "sent", "viewed", "paid", "overdue"]}}}}], "responses": {"200": {"description": "OK"}, "400": {"description": "Unknown status"}}}},
    "/invoice/logo": {
      "post": {"summary": "Upload a PNG, JPEG or GIF logo (max 5 MB)", "consumes": ["multipart/form-data"], "parameters": [{"in": "formData", "name": "logo", "type": "file", "required": true}], "responses": {"200": {"description": "OK"}, "400": {"description": "Not a PNG, JPEG or GIF, or too large"}}},
      "delete": {"summary": "Remove the logo", "responses": {"200": {"description": "OK"}}}
    },
    "/invoice/export": {"post": {"summary": "Render and save the PDF, mark the invoice sent", "produces": ["application/pdf"], "responses": {"200": {"description": "PDF"}, "409": {"description": "Invoice changed during rendering"}}}},
    "/invoice/email": {"post": {"summary": "Email the invoice or return a mailto link", "responses": {"200": {"description": "OK"}, "502": {"description": "Webhook failed"}}}},
    "/invoice/link": {"get": {"summary": "Public view link", "responses": {"200": {"description": "OK"}, "404": {"description": "No public view URL"}}}},
    "/invoice/qr.png": {"get": {"summary": "Payment link QR code", "produces": ["image/png"], "responses": {"200": {"description": "PNG"}, "204": {"description": "No payment link"}, "409": {"description": "Superseded by a newer render"}}}},
    "/clients": {
      "get": {"summary": "Saved clients, newest first", "responses": {"200": {"description": "OK"}}},
      "post": {"summary": "Save the invoice's client", "responses": {"201": {"description": "Created"}}}
    },
    "/clients/{id}/select": {"post": {"summary": "Fill the invoice's client from a saved client", "parameters": [{"in": "path", "name": "id", "required": true, "type": "string"}], "responses": {"200": {"description": "OK"}, "404": {"description": "Unknown client"}}}},
    "/clients/{id}": {"delete": {"summary": "Delete a saved client", "parameters": [{"in": "path", "name": "id", "required": true, "type": "string"}], "responses": {"204": {"description": "Deleted"}, "404": {"description": "Unknown client"}}}}
  },
  "definitions": {
    "LineItem": {"type": "object", "properties": {"id": {"type": "string"}, "description": {"type": "string"}, "qty": {"type": "number"}, "price": {"type": "number"}}},
    "ItemPatch": {"type": "object", "properties": {"description": {"type": "string"}, "qty": {"type": "number"}, "price": {"type": "number"}}},
    "Totals": {"type": "object", "properties": {"subtotal": {"type": "number"}, "tax": {"type": "number"}, "discount": {"type": "number"}, "total": {"type": "number"}}},
    "InvoiceResponse": {"type": "object", "properties": {"invoice": {"type": "object"}, "totals": {"$ref": "#/definitions/Totals"}}}
  }
}`
