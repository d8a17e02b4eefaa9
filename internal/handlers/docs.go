package handlers

import (
	"encoding/json"
	"html/template"
	"net/http"
)

const openAPIPath = "/api/docs/openapi.json"

func schemaRef(name string) map[string]string {
	return map[string]string{"$ref": "#/components/schemas/" + name}
}

func jsonContent(schema interface{}) map[string]interface{} {
	return map[string]interface{}{
		"application/json": map[string]interface{}{"schema": schema},
	}
}

func jsonResponse(description string, schema interface{}) map[string]interface{} {
	return map[string]interface{}{
		"description": description,
		"content":     jsonContent(schema),
	}
}

func queryParam(name, description, typ string) map[string]interface{} {
	return map[string]interface{}{
		"name":        name,
		"in":          "query",
		"description": description,
		"required":    false,
		"schema":      map[string]string{"type": typ},
	}
}

func pathParam(name, description string) map[string]interface{} {
	return map[string]interface{}{
		"name":        name,
		"in":          "path",
		"description": description,
		"required":    true,
		"schema":      map[string]string{"type": "string"},
	}
}

var (
	numberSchema   = map[string]string{"type": "number"}
	stringSchema   = map[string]string{"type": "string"}
	dateTimeSchema = map[string]string{"type": "string", "format": "date-time"}
	stringList     = map[string]interface{}{"type": "array", "items": stringSchema}
	topParam       = queryParam("top", "Show at most N fertilizers and N pesticides (default: all)", "integer")
	errorResponses = map[string]interface{}{
		"400": jsonResponse("Invalid input", schemaRef("Error")),
		"500": jsonResponse("Internal error", schemaRef("Error")),
	}
)

func withErrors(ok map[string]interface{}) map[string]interface{} {
	out := map[string]interface{}{}
	for k, v := range errorResponses {
		out[k] = v
	}
	for k, v := range ok {
		out[k] = v
	}
	return out
}

func rangeSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"low":  numberSchema,
			"high": numberSchema,
		},
	}
}

func averagesSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"nitrogen": numberSchema,
			"ph":       numberSchema,
			"moisture": numberSchema,
		},
	}
}

func components() map[string]interface{} {
	return map[string]interface{}{
		"schemas": map[string]interface{}{
			"ReadingInput": map[string]interface{}{
				"type":     "object",
				"required": []string{"nitrogen", "ph", "moisture", "crop"},
				"properties": map[string]interface{}{
					"message_id":  stringSchema,
					"nitrogen":    map[string]interface{}{"type": "number", "minimum": 0, "maximum": 100},
					"ph":          map[string]interface{}{"type": "number", "minimum": 0, "maximum": 14},
					"moisture":    map[string]interface{}{"type": "number", "minimum": 0, "maximum": 100},
					"crop":        stringSchema,
					"recorded_at": dateTimeSchema,
				},
			},
			"SoilReading": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"id":          stringSchema,
					"recorded_at": dateTimeSchema,
					"nitrogen":    numberSchema,
					"ph":          numberSchema,
					"moisture":    numberSchema,
					"crop":        stringSchema,
					"created_at":  dateTimeSchema,
				},
			},
			"Summary": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"has_data":     map[string]string{"type": "boolean"},
					"latest":       schemaRef("SoilReading"),
					"count":        map[string]string{"type": "integer"},
					"averages":     averagesSchema(),
					"raw_averages": averagesSchema(),
					"series": map[string]interface{}{
						"type": "array",
						"items": map[string]interface{}{
							"type": "object",
							"properties": map[string]interface{}{
								"index":       map[string]string{"type": "integer"},
								"recorded_at": dateTimeSchema,
								"nitrogen":    numberSchema,
								"ph":          numberSchema,
								"moisture":    numberSchema,
							},
						},
					},
				},
			},
			"Diagnosis": map[string]interface{}{
				"type":     "object",
				"nullable": true,
				"properties": map[string]interface{}{
					"reading_id":    stringSchema,
					"crop":          stringSchema,
					"known_crop":    map[string]string{"type": "boolean"},
					"alerts":        stringList,
					"confirmations": stringList,
					"actions": map[string]interface{}{
						"type": "array",
						"items": map[string]interface{}{
							"type": "object",
							"properties": map[string]interface{}{
								"title":       stringSchema,
								"description": stringSchema,
								"priority":    map[string]interface{}{"type": "string", "enum": []string{"high", "medium"}},
							},
						},
					},
					"fertilizers": stringList,
					"pesticides":  stringList,
					"tips":        stringList,
				},
			},
			"CropProfile": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"crop":        stringSchema,
					"nitrogen":    rangeSchema(),
					"ph":          rangeSchema(),
					"moisture":    rangeSchema(),
					"fertilizers": stringList,
					"pesticides":  stringList,
					"known":       map[string]string{"type": "boolean"},
				},
			},
			"WeatherReport": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"weather": map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"location":    stringSchema,
							"temperature": numberSchema,
							"humidity":    numberSchema,
							"description": stringSchema,
							"icon":        stringSchema,
							"fetched_at":  dateTimeSchema,
							"cached":      map[string]string{"type": "boolean"},
						},
					},
					"tips": stringList,
				},
			},
			"Error": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"error":   stringSchema,
					"message": stringSchema,
					"code":    map[string]string{"type": "integer"},
				},
			},
		},
	}
}

func paths() map[string]interface{} {
	diagnosisBody := map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{"diagnosis": schemaRef("Diagnosis")},
	}

	return map[string]interface{}{
		"/api/readings": map[string]interface{}{
			"post": map[string]interface{}{
				"summary":     "Record a soil reading",
				"description": "Validate a reading and append it to the front of the log",
				"requestBody": map[string]interface{}{"required": true, "content": jsonContent(schemaRef("ReadingInput"))},
				"responses":   withErrors(map[string]interface{}{"201": jsonResponse("Reading recorded", schemaRef("SoilReading"))}),
			},
			"get": map[string]interface{}{
				"summary":     "List soil readings",
				"description": "Newest first, with pagination and an optional crop filter",
				"parameters": []map[string]interface{}{
					queryParam("crop", "Filter by crop identifier", "string"),
					queryParam("page", "Page number (default: 1)", "integer"),
					queryParam("limit", "Records per page (default: 100, max: 1000)", "integer"),
				},
				"responses": withErrors(map[string]interface{}{
					"200": jsonResponse("Successful response", map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"data":        map[string]interface{}{"type": "array", "items": schemaRef("SoilReading")},
							"total":       map[string]string{"type": "integer"},
							"page":        map[string]string{"type": "integer"},
							"limit":       map[string]string{"type": "integer"},
							"total_pages": map[string]string{"type": "integer"},
						},
					}),
				}),
			},
		},
		"/api/readings/{id}": map[string]interface{}{
			"get": map[string]interface{}{
				"summary":    "Get one reading",
				"parameters": []map[string]interface{}{pathParam("id", "Reading ID")},
				"responses": withErrors(map[string]interface{}{
					"200": jsonResponse("Successful response", schemaRef("SoilReading")),
					"404": jsonResponse("Reading not found", schemaRef("Error")),
				}),
			},
		},
		"/api/readings/summary": map[string]interface{}{
			"get": map[string]interface{}{
				"summary":     "Summarize the reading log",
				"description": "Latest reading, averages over the whole log and the chronological series",
				"responses":   withErrors(map[string]interface{}{"200": jsonResponse("Successful response", schemaRef("Summary"))}),
			},
		},
		"/api/readings/diagnosis": map[string]interface{}{
			"get": map[string]interface{}{
				"summary":     "Diagnose the latest reading",
				"description": "Alerts, actions and product suggestions for the newest reading; null when the log is empty",
				"parameters":  []map[string]interface{}{topParam},
				"responses":   withErrors(map[string]interface{}{"200": jsonResponse("Successful response", diagnosisBody)}),
			},
		},
		"/api/diagnose": map[string]interface{}{
			"post": map[string]interface{}{
				"summary":     "Diagnose an ad-hoc reading",
				"description": "Evaluate a reading without storing it",
				"parameters":  []map[string]interface{}{topParam},
				"requestBody": map[string]interface{}{"required": true, "content": jsonContent(schemaRef("ReadingInput"))},
				"responses":   withErrors(map[string]interface{}{"200": jsonResponse("Successful response", diagnosisBody)}),
			},
		},
		"/api/crops": map[string]interface{}{
			"get": map[string]interface{}{
				"summary": "List crop profiles",
				"responses": map[string]interface{}{
					"200": jsonResponse("Known crops and the default profile", map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"data":    map[string]interface{}{"type": "array", "items": schemaRef("CropProfile")},
							"default": schemaRef("CropProfile"),
						},
					}),
				},
			},
		},
		"/api/crops/{crop}": map[string]interface{}{
			"get": map[string]interface{}{
				"summary":     "Get a crop profile",
				"description": "Unknown crops return the default profile with known=false",
				"parameters":  []map[string]interface{}{pathParam("crop", "Crop identifier")},
				"responses":   map[string]interface{}{"200": jsonResponse("Successful response", schemaRef("CropProfile"))},
			},
		},
		"/api/weather": map[string]interface{}{
			"get": map[string]interface{}{
				"summary":     "Current weather",
				"description": "Live conditions, or the last good observation marked cached=true when the upstream is unavailable",
				"parameters":  []map[string]interface{}{queryParam("location", "City or place name", "string")},
				"responses": withErrors(map[string]interface{}{
					"200": jsonResponse("Successful response", schemaRef("WeatherReport")),
					"404": jsonResponse("Unknown location", schemaRef("Error")),
					"503": jsonResponse("Weather unavailable", schemaRef("Error")),
				}),
			},
		},
		"/health": map[string]interface{}{
			"get": map[string]interface{}{
				"summary":     "Health check",
				"description": "Check that the API and its reading store are reachable",
				"responses": map[string]interface{}{
					"200": jsonResponse("Healthy", map[string]interface{}{
						"type":       "object",
						"properties": map[string]interface{}{"status": stringSchema, "timestamp": dateTimeSchema},
					}),
					"503": map[string]interface{}{"description": "Reading store unreachable"},
				},
			},
		},
		"/metrics": map[string]interface{}{
			"get": map[string]interface{}{
				"summary":     "Prometheus metrics",
				"description": "Prometheus metrics endpoint for monitoring",
				"responses": map[string]interface{}{
					"200": map[string]interface{}{
						"description": "Prometheus metrics in text format",
						"content": map[string]interface{}{
							"text/plain": map[string]interface{}{"schema": stringSchema},
						},
					},
				},
			},
		},
	}
}

// OpenAPISpec returns the OpenAPI 3.0 description of the Soil Advisor API
func OpenAPISpec(w http.ResponseWriter, r *http.Request) {
	spec := map[string]interface{}{
		"openapi": "3.0.0",
		"info": map[string]interface{}{
			"title":       "Soil Advisor API",
			"description": "Soil reading log with trend summaries, crop-specific diagnoses and weather lookup",
			"version":     "1.0.0",
		},
		"servers": []map[string]string{
			{"url": "http://localhost:8080", "description": "Local development server"},
		},
		"paths":      paths(),
		"components": components(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(spec)
}

var swaggerPage = template.Must(template.New("swagger").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>{{.Title}}</title>
    <link rel="stylesheet" type="text/css" href="https://unpkg.com/swagger-ui-dist@5.10.0/swagger-ui.css">
</head>
<body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5.10.0/swagger-ui-bundle.js"></script>
    <script>
        window.onload = function() {
            window.ui = SwaggerUIBundle({
                url: "{{.SpecURL}}",
                dom_id: '#swagger-ui',
                deepLinking: true
            });
        };
    </script>
</body>
</html>`))

// SwaggerUI serves an interactive page over OpenAPISpec
func SwaggerUI(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	swaggerPage.Execute(w, struct {
		Title   string
		SpecURL string
	}{
		Title:   "Soil Advisor API Documentation",
		SpecURL: openAPIPath,
	})
}
