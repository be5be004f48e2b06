package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "LessonSpark Membership Transfer API",
        "description": "Organization membership transfer-request workflow service",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Transfers", "description": "Membership transfer-request workflow"},
        {"name": "Notifications", "description": "In-app notification inbox"}
    ],
    "paths": {
        "/transfers": {
            "get": {
                "tags": ["Transfers"],
                "summary": "List transfer requests visible to the caller",
                "parameters": [
                    {"name": "status", "in": "query", "type": "string", "description": "Comma separated statuses"},
                    {"name": "subject", "in": "query", "type": "string"},
                    {"name": "organization", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Transfers"],
                "summary": "Open a membership transfer request",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateTransferRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Duplicate active request", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/transfers/{id}": {
            "get": {
                "tags": ["Transfers"],
                "summary": "Get transfer request detail",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/transfers/{id}/respond": {
            "post": {
                "tags": ["Transfers"],
                "summary": "Agree to or decline a pending transfer request",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RespondTransferRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "State conflict", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/transfers/{id}/process": {
            "post": {
                "tags": ["Transfers"],
                "summary": "Approve or deny a transfer request awaiting admin review",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ProcessTransferRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "State conflict", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "503": {"description": "Membership update failed, retryable", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/transfers/{id}/cancel": {
            "post": {
                "tags": ["Transfers"],
                "summary": "Cancel a transfer request as its initiator",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Already finalized", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/notifications": {
            "get": {
                "tags": ["Notifications"],
                "summary": "List the caller's notifications",
                "parameters": [
                    {"name": "unread", "in": "query", "type": "boolean"},
                    {"name": "limit", "in": "query", "type": "integer"},
                    {"name": "offset", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/notifications/{id}/read": {
            "post": {
                "tags": ["Notifications"],
                "summary": "Mark a notification as read",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        }
    },
    "definitions": {
        "TransferRequest": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "subject_user_id": {"type": "string"},
                "from_organization_id": {"type": "string"},
                "to_organization_id": {"type": "string"},
                "transfer_type": {"type": "string", "enum": ["to_another_org", "leave_org"]},
                "status": {"type": "string", "enum": ["pending_teacher", "pending_org_manager", "pending_admin", "approved", "denied", "declined_by_teacher", "declined_by_org_manager", "cancelled"]},
                "initiated_by": {"type": "string", "enum": ["teacher", "org_manager"]},
                "reason": {"type": "string"},
                "response_note": {"type": "string"},
                "responded_at": {"type": "string"},
                "admin_notes": {"type": "string"},
                "requested_by_user_id": {"type": "string"},
                "created_at": {"type": "string"},
                "processed_at": {"type": "string"},
                "processed_by_user_id": {"type": "string"}
            }
        },
        "CreateTransferRequest": {
            "type": "object",
            "properties": {
                "subject_user_id": {"type": "string"},
                "from_organization_id": {"type": "string"},
                "to_organization_id": {"type": "string"},
                "transfer_type": {"type": "string", "enum": ["to_another_org", "leave_org"]},
                "reason": {"type": "string", "minLength": 10, "maxLength": 500}
            },
            "required": ["subject_user_id", "from_organization_id", "transfer_type", "reason"]
        },
        "RespondTransferRequest": {
            "type": "object",
            "properties": {
                "decision": {"type": "string", "enum": ["agree", "decline"]},
                "response_note": {"type": "string", "maxLength": 500}
            },
            "required": ["decision"]
        },
        "ProcessTransferRequest": {
            "type": "object",
            "properties": {
                "decision": {"type": "string", "enum": ["approve", "deny"]},
                "admin_notes": {"type": "string", "maxLength": 500}
            },
            "required": ["decision"]
        },
        "Notification": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "user_id": {"type": "string"},
                "title": {"type": "string"},
                "body": {"type": "string"},
                "link": {"type": "string"},
                "read": {"type": "boolean"},
                "created_at": {"type": "string"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"},
                "retryable": {"type": "boolean"}
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
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
