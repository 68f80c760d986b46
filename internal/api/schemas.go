package api

const createDisputeSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["transaction_id", "dispute_type", "reason_code", "requested_by"],
  "properties": {
    "transaction_id": {"type": "string", "minLength": 1, "maxLength": 64},
    "dispute_type": {"type": "string", "enum": ["UNAUTHORIZED", "DUPLICATE", "FRAUD", "BILLING_ERROR", "PRODUCT_NOT_RECEIVED", "CREDIT_NOT_PROCESSED"]},
    "reason_code": {"type": "string", "minLength": 1, "maxLength": 64},
    "description": {"type": "string", "maxLength": 2000},
    "requested_by": {"type": "string", "minLength": 1, "maxLength": 255}
  }
}`

const issueCreditSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["amount"],
  "properties": {
    "amount": {"type": ["number", "string"]}
  }
}`

const chargebackSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["network_reason_code"],
  "properties": {
    "network_reason_code": {"type": "string", "minLength": 1, "maxLength": 16},
    "narrative": {"type": "string", "maxLength": 2000}
  }
}`

const merchantResponseSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["response_type", "payload"],
  "properties": {
    "response_type": {"type": "string", "minLength": 1, "maxLength": 64},
    "payload": {"type": "object"}
  }
}`

const networkResponseSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["payload"],
  "properties": {
    "payload": {"type": "object"}
  }
}`

const resolveDisputeSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["target_status"],
  "properties": {
    "target_status": {"type": "string", "enum": ["RESOLVED_MERCHANT", "RESOLVED_CUSTOMER", "CLOSED"]},
    "reason": {"type": "string", "maxLength": 2000}
  }
}`

const escalateDisputeSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["trigger"],
  "properties": {
    "trigger": {"type": "string", "enum": ["TIMELINE_EXCEEDED", "HIGH_VALUE", "FRAUD_INVESTIGATION"]}
  }
}`
