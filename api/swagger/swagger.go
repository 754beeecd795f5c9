package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Plan Export API",
        "description": "Exports innovation practice course records as per-student documents and class archives",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Plans", "description": "Plan, meeting and evaluation exports"}
    ],
    "paths": {
        "/plans/export": {
            "post": {
                "tags": ["Plans"],
                "summary": "Export student plans",
                "description": "With studentId one document is produced; classId then selects the class (empty or \"all\" for every term). Without studentId every student enrolled in classId is exported and archived.",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/PlanExportRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Unknown student or empty class", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "500": {"description": "Document, archive or batch failure", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "504": {"description": "Batch timed out", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/plans/export/stats": {
            "get": {
                "tags": ["Plans"],
                "summary": "Export activity summary",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/plans/export/jobs": {
            "post": {
                "tags": ["Plans"],
                "summary": "Queue a plan export",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/PlanExportRequest"}}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/plans/export/jobs/{id}": {
            "get": {
                "tags": ["Plans"],
                "summary": "Export job status",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/plans/download/{token}": {
            "get": {
                "tags": ["Plans"],
                "summary": "Download an exported document or archive",
                "produces": ["application/pdf", "application/zip", "application/octet-stream"],
                "parameters": [
                    {"name": "token", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "File stream"},
                    "403": {"description": "Invalid or expired token", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "File no longer available", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "PlanExportRequest": {
            "type": "object",
            "properties": {
                "studentId": {"type": "string"},
                "classId": {"type": "string"}
            }
        },
        "ExportFailure": {
            "type": "object",
            "properties": {
                "schoolId": {"type": "string"},
                "name": {"type": "string"},
                "error": {"type": "string"}
            }
        },
        "PlanExportResponse": {
            "type": "object",
            "properties": {
                "kind": {"type": "string", "enum": ["single", "class"]},
                "filename": {"type": "string"},
                "url": {"type": "string"},
                "expiresAt": {"type": "string", "format": "date-time"},
                "total": {"type": "integer"},
                "failures": {"type": "array", "items": {"$ref": "#/definitions/ExportFailure"}}
            }
        },
        "ExportJobStatusResponse": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "kind": {"type": "string"},
                "status": {"type": "string", "enum": ["QUEUED", "PROCESSING", "FINISHED", "FAILED"]},
                "resultUrl": {"type": "string"},
                "failures": {"type": "array", "items": {"$ref": "#/definitions/ExportFailure"}},
                "error": {"type": "string"},
                "createdAt": {"type": "string", "format": "date-time"},
                "finishedAt": {"type": "string", "format": "date-time"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"},
                "details": {"type": "object"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
