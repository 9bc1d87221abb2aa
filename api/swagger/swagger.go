package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Tilawah Live API",
        "description": "Live co-reading sessions: access gate, presence, position sync and scholar roster",
        "version": "0.1.0"
    },
    "basePath": "/",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    },
    "tags": [
        {
            "name": "Access",
            "description": "Live access requests and decisions"
        },
        {
            "name": "Live",
            "description": "Session lifecycle, heartbeat and position sync"
        },
        {
            "name": "Scholars",
            "description": "Merged live roster"
        }
    ],
    "paths": {
        "/health": {
            "get": {
                "summary": "Health check",
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                }
            }
        },
        "/ready": {
            "get": {
                "summary": "Readiness check",
                "responses": {
                    "200": {
                        "description": "Ready"
                    },
                    "503": {
                        "description": "A dependency is down"
                    }
                }
            }
        },
        "/api/v1/access/requests": {
            "post": {
                "tags": [
                    "Access"
                ],
                "summary": "Request access to live sessions",
                "parameters": [
                    {
                        "in": "body",
                        "name": "payload",
                        "required": false,
                        "schema": {
                            "$ref": "#/definitions/RequestAccessRequest"
                        }
                    }
                ],
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "responses": {
                    "201": {
                        "description": "Created",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "409": {
                        "description": "Request already pending or access granted",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            },
            "get": {
                "tags": [
                    "Access"
                ],
                "summary": "List access requests",
                "parameters": [
                    {
                        "in": "query",
                        "name": "status",
                        "required": false,
                        "type": "string",
                        "description": "pending, approved or rejected"
                    },
                    {
                        "in": "query",
                        "name": "limit",
                        "required": false,
                        "type": "integer",
                        "description": "Maximum rows"
                    }
                ],
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "403": {
                        "description": "Forbidden",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/access/requests/{id}/decision": {
            "post": {
                "tags": [
                    "Access"
                ],
                "summary": "Approve or reject an access request",
                "parameters": [
                    {
                        "in": "path",
                        "name": "id",
                        "required": true,
                        "type": "string",
                        "description": "Access request ID"
                    },
                    {
                        "in": "body",
                        "name": "payload",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/DecideAccessRequest"
                        }
                    }
                ],
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "404": {
                        "description": "Unknown or already decided",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/access/status": {
            "get": {
                "tags": [
                    "Access"
                ],
                "summary": "Get live access status",
                "parameters": [
                    {
                        "in": "query",
                        "name": "userId",
                        "required": false,
                        "type": "string",
                        "description": "User to inspect (admin only)"
                    }
                ],
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/live/batches/{batchId}/sessions": {
            "post": {
                "tags": [
                    "Live"
                ],
                "summary": "Start or join a live session",
                "parameters": [
                    {
                        "in": "path",
                        "name": "batchId",
                        "required": true,
                        "type": "string",
                        "description": "Batch ID"
                    },
                    {
                        "in": "body",
                        "name": "payload",
                        "required": false,
                        "schema": {
                            "$ref": "#/definitions/StartSessionRequest"
                        }
                    }
                ],
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "responses": {
                    "200": {
                        "description": "Joined existing session",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "201": {
                        "description": "Created session",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "403": {
                        "description": "No access",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "412": {
                        "description": "Batch archived",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "429": {
                        "description": "Daily limit reached",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/live/batches/{batchId}/leave": {
            "post": {
                "tags": [
                    "Live"
                ],
                "summary": "Leave a batch roster",
                "parameters": [
                    {
                        "in": "path",
                        "name": "batchId",
                        "required": true,
                        "type": "string",
                        "description": "Batch ID"
                    },
                    {
                        "in": "body",
                        "name": "payload",
                        "required": false,
                        "schema": {
                            "$ref": "#/definitions/LeaveRequest"
                        }
                    }
                ],
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/live/batches/{batchId}/ping": {
            "post": {
                "tags": [
                    "Live"
                ],
                "summary": "Heartbeat",
                "parameters": [
                    {
                        "in": "path",
                        "name": "batchId",
                        "required": true,
                        "type": "string",
                        "description": "Batch ID"
                    },
                    {
                        "in": "body",
                        "name": "payload",
                        "required": false,
                        "schema": {
                            "$ref": "#/definitions/PingRequest"
                        }
                    }
                ],
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "404": {
                        "description": "No open session",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/live/sessions/{id}": {
            "get": {
                "tags": [
                    "Live"
                ],
                "summary": "Observe a live session",
                "parameters": [
                    {
                        "in": "path",
                        "name": "id",
                        "required": true,
                        "type": "string",
                        "description": "Session ID"
                    }
                ],
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/live/sessions/{id}/position": {
            "put": {
                "tags": [
                    "Live"
                ],
                "summary": "Update the reading position",
                "parameters": [
                    {
                        "in": "path",
                        "name": "id",
                        "required": true,
                        "type": "string",
                        "description": "Session ID"
                    },
                    {
                        "in": "body",
                        "name": "payload",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/UpdatePositionRequest"
                        }
                    }
                ],
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "400": {
                        "description": "Position out of range",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "412": {
                        "description": "Session ended",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/live/sessions/{id}/end": {
            "post": {
                "tags": [
                    "Live"
                ],
                "summary": "End a live session",
                "parameters": [
                    {
                        "in": "path",
                        "name": "id",
                        "required": true,
                        "type": "string",
                        "description": "Session ID"
                    }
                ],
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/scholars/{scholarId}/live-sessions": {
            "get": {
                "tags": [
                    "Scholars"
                ],
                "summary": "List active participants across a scholar's batches",
                "parameters": [
                    {
                        "in": "path",
                        "name": "scholarId",
                        "required": true,
                        "type": "string",
                        "description": "Scholar ID"
                    }
                ],
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "503": {
                        "description": "Batch list unavailable",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        },
        "/api/v1/scholars/{scholarId}/live-sessions/export": {
            "get": {
                "tags": [
                    "Scholars"
                ],
                "summary": "Export the active roster",
                "parameters": [
                    {
                        "in": "path",
                        "name": "scholarId",
                        "required": true,
                        "type": "string",
                        "description": "Scholar ID"
                    },
                    {
                        "in": "query",
                        "name": "format",
                        "required": false,
                        "type": "string",
                        "description": "csv (default) or pdf"
                    }
                ],
                "produces": [
                    "text/csv",
                    "application/pdf"
                ],
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "responses": {
                    "200": {
                        "description": "Rendered file",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        }
    },
    "definitions": {
        "RequestAccessRequest": {
            "type": "object",
            "properties": {
                "displayName": {
                    "type": "string"
                },
                "email": {
                    "type": "string"
                }
            }
        },
        "DecideAccessRequest": {
            "type": "object",
            "required": [
                "outcome"
            ],
            "properties": {
                "outcome": {
                    "type": "string",
                    "enum": [
                        "approve",
                        "reject"
                    ]
                }
            }
        },
        "StartSessionRequest": {
            "type": "object",
            "properties": {
                "childId": {
                    "type": "string"
                },
                "childName": {
                    "type": "string"
                }
            }
        },
        "LeaveRequest": {
            "type": "object",
            "properties": {
                "childId": {
                    "type": "string"
                },
                "end": {
                    "type": "boolean"
                }
            }
        },
        "PingRequest": {
            "type": "object",
            "properties": {
                "childId": {
                    "type": "string"
                },
                "childName": {
                    "type": "string"
                }
            }
        },
        "UpdatePositionRequest": {
            "type": "object",
            "required": [
                "surah",
                "ayah"
            ],
            "properties": {
                "surah": {
                    "type": "integer",
                    "minimum": 1,
                    "maximum": 114
                },
                "ayah": {
                    "type": "integer",
                    "minimum": 1
                }
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {
                    "type": "string"
                },
                "message": {
                    "type": "string"
                },
                "status": {
                    "type": "integer"
                },
                "details": {
                    "type": "object"
                }
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {
                    "type": "object"
                },
                "error": {
                    "$ref": "#/definitions/APIError"
                },
                "meta": {
                    "type": "object"
                }
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
