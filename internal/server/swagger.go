package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger registers minimal Swagger/OpenAPI endpoints for the document API.
// - GET /swagger/index.html  -> a small HTML page that loads the OpenAPI JSON
// - GET /swagger/doc.json    -> machine-readable OpenAPI JSON
func RegisterSwagger(r gin.IRouter) {
	r.GET("/swagger/index.html", func(c *gin.Context) {
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(swaggerHTML))
	})
	r.GET("/swagger/doc.json", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json", []byte(swaggerJSON))
	})
}

const swaggerHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>docs-service - Swagger</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@4/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@4/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/swagger/doc.json',
        dom_id: '#swagger-ui',
      })
    </script>
  </body>
</html>`

const swaggerJSON = `{
  "openapi": "3.0.0",
  "info": { "title": "docs-service", "version": "v1.0.0" },
  "components": {
    "schemas": {
      "Document": {"type":"object","properties":{"id":{"type":"string"},"title":{"type":"string"},"category":{"type":"string"},"status":{"type":"string","enum":["draft","review","published","archived"]},"currentVersionNumber":{"type":"integer"},"createdAt":{"type":"string","format":"date-time"},"updatedAt":{"type":"string","format":"date-time"}}},
      "Version": {"type":"object","properties":{"documentId":{"type":"string"},"versionNumber":{"type":"integer"},"title":{"type":"string"},"category":{"type":"string"},"content":{"type":"string"},"status":{"type":"string"},"metadata":{"type":"object","properties":{"author":{"type":"string"},"createdAt":{"type":"string","format":"date-time"},"changeSummary":{"type":"string"},"revertedFrom":{"type":"integer"}}}}},
      "Error": {"type":"object","properties":{"error":{"type":"string"},"fields":{"type":"object","additionalProperties":{"type":"string"}}}}
    }
  },
  "paths": {
    "/api/documents": {
      "get": { "summary": "List documents, most recently updated first", "parameters": [{"name":"status","in":"query","schema":{"type":"string"}},{"name":"category","in":"query","schema":{"type":"string"}}], "responses": { "200": { "description": "documents" }, "400": { "description": "unknown status" } } },
      "post": { "summary": "Create a draft document at version 1", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"title":{"type":"string"},"category":{"type":"string"},"content":{"type":"string"},"author":{"type":"string"},"changeSummary":{"type":"string"}}}}}}, "responses": { "201": { "description": "created" }, "400": { "description": "validation failed" } } }
    },
    "/api/documents/{id}": {
      "get": { "summary": "Get the document head", "responses": { "200": { "description": "document" }, "404": { "description": "not found" } } },
      "patch": { "summary": "Save new content as the next version", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"content":{"type":"string"},"author":{"type":"string"},"changeSummary":{"type":"string"},"title":{"type":"string"},"category":{"type":"string"}}}}}}, "responses": { "200": { "description": "document and version" }, "400": { "description": "validation failed" }, "404": { "description": "not found" } } }
    },
    "/api/documents/{id}/transitions": {
      "get": { "summary": "List statuses reachable from the current one", "responses": { "200": { "description": "next statuses" } } },
      "post": { "summary": "Change status", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"status":{"type":"string"},"author":{"type":"string"}}}}}}, "responses": { "200": { "description": "document" }, "404": { "description": "not found" }, "409": { "description": "transition not allowed" } } }
    },
    "/api/documents/{id}/revert": {
      "post": { "summary": "Copy an old version forward as a new version", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"version":{"type":"integer"},"author":{"type":"string"}}}}}}, "responses": { "200": { "description": "document and version" }, "404": { "description": "document or version not found" } } }
    },
    "/api/documents/{id}/history": {
      "get": { "summary": "All versions, latest first", "responses": { "200": { "description": "versions" }, "404": { "description": "not found" } } }
    },
    "/api/documents/{id}/versions/{version}": {
      "get": { "summary": "Get one version", "responses": { "200": { "description": "version" }, "404": { "description": "not found" } } }
    },
    "/api/documents/{id}/versions/{version}/export": {
      "post": { "summary": "Export a version to object storage and return a download URL", "responses": { "200": { "description": "url" }, "404": { "description": "not found" }, "501": { "description": "object storage not configured" } } }
    },
    "/health": { "get": { "summary": "Liveness check", "responses": { "200": { "description": "healthy" } } } },
    "/ready": { "get": { "summary": "Readiness check", "responses": { "200": { "description": "ready" }, "503": { "description": "not ready" } } } },
    "/metrics": { "get": { "summary": "Prometheus metrics", "responses": { "200": { "description": "metrics" } } } }
  }
}`
