package controlplane

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// openAPISpec describes this daemon's actual HTTP surface — regenerated
// from handler/openapi.go's pattern of hand-written paths/schemas/tags,
// since the teacher treats API discoverability as ambient rather than a
// feature a Non-goal could exclude.
func openAPISpec() map[string]interface{} {
	return map[string]interface{}{
		"openapi": "3.0.3",
		"info": map[string]interface{}{
			"title":       "orchestratord control plane",
			"description": "Local telemetry and usage daemon — stats, streaming, and knowledge-store API",
			"version":     "1.0.0",
		},
		"paths": openAPIPaths(),
		"components": map[string]interface{}{
			"securitySchemes": map[string]interface{}{
				"BearerAuth": map[string]interface{}{
					"type":        "http",
					"scheme":      "bearer",
					"description": "Daemon-local API token",
				},
			},
			"schemas": openAPISchemas(),
		},
		"security": []map[string]interface{}{
			{"BearerAuth": []string{}},
		},
		"tags": []map[string]interface{}{
			{"name": "Health", "description": "Liveness and degraded-state reporting"},
			{"name": "Stats", "description": "Aggregated usage and cost snapshots"},
			{"name": "Stream", "description": "Server-sent stats push"},
			{"name": "Knowledge", "description": "Indexed document store and semantic search"},
		},
	}
}

func openAPIPaths() map[string]interface{} {
	return map[string]interface{}{
		"/health": map[string]interface{}{
			"get": map[string]interface{}{
				"tags":        []string{"Health"},
				"summary":     "Liveness and degraded-state probe",
				"operationId": "health",
				"security":    []map[string]interface{}{},
				"responses": map[string]interface{}{
					"200": map[string]interface{}{"description": "Daemon is alive"},
				},
			},
		},
		"/api/stats": map[string]interface{}{
			"get": map[string]interface{}{
				"tags":        []string{"Stats"},
				"summary":     "Windowed usage summary",
				"operationId": "getStats",
				"responses": map[string]interface{}{
					"200": map[string]interface{}{
						"description": "Aggregated call counts and cost",
						"content": map[string]interface{}{
							"application/json": map[string]interface{}{
								"schema": map[string]interface{}{"$ref": "#/components/schemas/StatsSummary"},
							},
						},
					},
					"401": map[string]interface{}{"description": "Missing or invalid bearer token"},
					"429": map[string]interface{}{"description": "Rate limit exceeded"},
				},
			},
		},
		"/api/stats/projects": map[string]interface{}{
			"get": map[string]interface{}{
				"tags":        []string{"Stats"},
				"summary":     "Per-project usage breakdown",
				"operationId": "getStatsByProject",
				"responses": map[string]interface{}{
					"200": map[string]interface{}{"description": "Per-project call counts and cost"},
				},
			},
		},
		"/api/stream": map[string]interface{}{
			"get": map[string]interface{}{
				"tags":        []string{"Stream"},
				"summary":     "Server-sent stats snapshots",
				"operationId": "streamStats",
				"responses": map[string]interface{}{
					"200": map[string]interface{}{"description": "text/event-stream of StatsSummary snapshots"},
					"503": map[string]interface{}{"description": "Subscriber ceiling reached"},
				},
			},
		},
		"/api/knowledge/store": map[string]interface{}{
			"post": map[string]interface{}{
				"tags":        []string{"Knowledge"},
				"summary":     "Store one document",
				"operationId": "knowledgeStore",
				"requestBody": map[string]interface{}{
					"required": true,
					"content": map[string]interface{}{
						"application/json": map[string]interface{}{
							"schema": map[string]interface{}{"$ref": "#/components/schemas/KnowledgeDocument"},
						},
					},
				},
				"responses": map[string]interface{}{
					"201": map[string]interface{}{"description": "Document stored"},
				},
			},
		},
		"/api/knowledge/store/batch": map[string]interface{}{
			"post": map[string]interface{}{
				"tags":        []string{"Knowledge"},
				"summary":     "Store multiple documents",
				"operationId": "knowledgeBatchStore",
				"responses": map[string]interface{}{
					"201": map[string]interface{}{"description": "Documents stored"},
				},
			},
		},
		"/api/knowledge/search": map[string]interface{}{
			"get": map[string]interface{}{
				"tags":        []string{"Knowledge"},
				"summary":     "Semantic search over stored documents",
				"operationId": "knowledgeSearch",
				"parameters": []map[string]interface{}{
					{"name": "q", "in": "query", "required": true, "schema": map[string]interface{}{"type": "string"}},
					{"name": "limit", "in": "query", "schema": map[string]interface{}{"type": "integer", "default": 10}},
				},
				"responses": map[string]interface{}{
					"200": map[string]interface{}{"description": "Ranked matching documents"},
				},
			},
		},
		"/api/knowledge/query": map[string]interface{}{
			"post": map[string]interface{}{
				"tags":        []string{"Knowledge"},
				"summary":     "Structured query over stored documents",
				"operationId": "knowledgeQuery",
				"responses": map[string]interface{}{
					"200": map[string]interface{}{"description": "Matching documents"},
				},
			},
		},
		"/api/knowledge/stats": map[string]interface{}{
			"get": map[string]interface{}{
				"tags":        []string{"Knowledge"},
				"summary":     "Knowledge store size and health counters",
				"operationId": "knowledgeStats",
				"responses": map[string]interface{}{
					"200": map[string]interface{}{"description": "Document count and index stats"},
				},
			},
		},
		"/api/knowledge/health": map[string]interface{}{
			"get": map[string]interface{}{
				"tags":        []string{"Knowledge"},
				"summary":     "Knowledge engine health",
				"operationId": "knowledgeHealth",
				"responses": map[string]interface{}{
					"200": map[string]interface{}{"description": "Knowledge engine is serving"},
				},
			},
		},
		"/api/knowledge/cleanup": map[string]interface{}{
			"delete": map[string]interface{}{
				"tags":        []string{"Knowledge"},
				"summary":     "Evict stale or orphaned documents",
				"operationId": "knowledgeCleanup",
				"responses": map[string]interface{}{
					"200": map[string]interface{}{"description": "Number of documents removed"},
				},
			},
		},
		"/api/knowledge/{id}": map[string]interface{}{
			"get": map[string]interface{}{
				"tags":        []string{"Knowledge"},
				"summary":     "Fetch one document by id",
				"operationId": "knowledgeGetByID",
				"parameters": []map[string]interface{}{
					{"name": "id", "in": "path", "required": true, "schema": map[string]interface{}{"type": "string"}},
				},
				"responses": map[string]interface{}{
					"200": map[string]interface{}{"description": "Document found"},
					"404": map[string]interface{}{"description": "No document with that id"},
				},
			},
		},
	}
}

func openAPISchemas() map[string]interface{} {
	return map[string]interface{}{
		"StatsSummary": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"window_start": map[string]interface{}{"type": "string", "format": "date-time"},
				"call_count":   map[string]interface{}{"type": "integer"},
				"total_cost":   map[string]interface{}{"type": "number"},
				"degraded":     map[string]interface{}{"type": "boolean"},
			},
		},
		"KnowledgeDocument": map[string]interface{}{
			"type":     "object",
			"required": []string{"id", "content"},
			"properties": map[string]interface{}{
				"id":      map[string]interface{}{"type": "string"},
				"content": map[string]interface{}{"type": "string"},
				"source":  map[string]interface{}{"type": "string"},
			},
		},
		"Error": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"error": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"type":    map[string]interface{}{"type": "string"},
						"message": map[string]interface{}{"type": "string"},
						"details": map[string]interface{}{"type": "object"},
					},
				},
			},
		},
	}
}

// openAPIHandler serves the spec at /openapi.json, unauthenticated so
// tooling can discover the API before it has a token.
func openAPIHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(openAPISpec())
	}
}

// swaggerUIHandler serves a minimal Swagger UI page pointed at
// /openapi.json — unchanged from the teacher's page beyond the title.
func swaggerUIHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		html := `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>orchestratord API</title>
    <link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
    <div id="swagger-ui"></div>
    <script src="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
    <script>
    SwaggerUIBundle({
        url: '/openapi.json',
        dom_id: '#swagger-ui',
        deepLinking: true,
        presets: [SwaggerUIBundle.presets.apis, SwaggerUIBundle.SwaggerUIStandalonePreset],
        layout: "BaseLayout"
    });
    </script>
</body>
</html>`
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, html)
	}
}
