// Package manifest structurally validates network-policy documents.
package manifest

import (
	"embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mergegate/mergegate/core/infra/schema"
	"github.com/mergegate/mergegate/core/policy"
)

// Severity grades a finding. Errors block a merge; warnings are recorded in
// the audit trail but do not block by default.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Code identifies a validation finding class.
type Code string

const (
	CodeMalformedDocument       Code = "MalformedDocument"
	CodeSchemaViolation         Code = "SchemaViolation"
	CodeMissingRequiredField    Code = "MissingRequiredField"
	CodeMissingJustification    Code = "MissingJustification"
	CodeNamespaceTenantMismatch Code = "NamespaceTenantMismatch"
	CodeOverlyPermissiveRule    Code = "OverlyPermissiveRule"
	CodeDisallowedAllTarget     Code = "DisallowedAllTarget"
	CodeUnexpectedKind          Code = "UnexpectedKind"
)

// Finding is one validation result for a document.
type Finding struct {
	Severity Severity `json:"severity"`
	Code     Code     `json:"code"`
	Message  string   `json:"message"`
	Path     string   `json:"path"`
	Field    string   `json:"field,omitempty"`
}

// Expectation carries what the file's classification implies about its
// content.
type Expectation struct {
	Path   string
	Tenant string
	Tier   policy.Tier
	Kind   string
}

const policyDocumentSchemaFile = "schema/policydoc.schema.json"

//go:embed schema/*.json
var manifestSchemaFS embed.FS

// Validate parses and checks one manifest. A parse failure yields a single
// MalformedDocument error and halts further checks; all other findings
// accumulate.
func Validate(content []byte, expect Expectation) []Finding {
	var findings []Finding

	var raw any
	if err := yaml.Unmarshal(content, &raw); err != nil {
		return []Finding{{
			Severity: SeverityError,
			Code:     CodeMalformedDocument,
			Message:  fmt.Sprintf("cannot parse document: %v", err),
			Path:     expect.Path,
		}}
	}
	if raw == nil {
		return []Finding{{
			Severity: SeverityError,
			Code:     CodeMalformedDocument,
			Message:  "document is empty",
			Path:     expect.Path,
		}}
	}

	findings = append(findings, schemaFindings(raw, expect.Path)...)

	var doc Document
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return append(findings, Finding{
			Severity: SeverityError,
			Code:     CodeMalformedDocument,
			Message:  fmt.Sprintf("cannot decode document: %v", err),
			Path:     expect.Path,
		})
	}

	findings = append(findings, requiredFieldFindings(doc, expect)...)
	findings = append(findings, tierFindings(doc, expect)...)
	findings = append(findings, trafficFindings(doc, expect.Path)...)
	return findings
}

func schemaFindings(raw any, path string) []Finding {
	schemaBytes, err := manifestSchemaFS.ReadFile(policyDocumentSchemaFile)
	if err != nil {
		// Broken embed is an engine fault, not a document fault; surface it
		// as an error finding so the run still fails closed.
		return []Finding{{
			Severity: SeverityError,
			Code:     CodeSchemaViolation,
			Message:  fmt.Sprintf("policy document schema unavailable: %v", err),
			Path:     path,
		}}
	}
	if err := schema.Validate("policydoc", schemaBytes, raw); err != nil {
		var out []Finding
		for _, v := range schema.Violations(err) {
			out = append(out, Finding{
				Severity: SeverityError,
				Code:     CodeSchemaViolation,
				Message:  v.Message,
				Path:     path,
				Field:    v.Location,
			})
		}
		return out
	}
	return nil
}

func requiredFieldFindings(doc Document, expect Expectation) []Finding {
	var out []Finding
	if strings.TrimSpace(doc.Metadata.Name) == "" {
		out = append(out, Finding{
			Severity: SeverityError,
			Code:     CodeMissingRequiredField,
			Message:  "metadata.name must be present and non-empty",
			Path:     expect.Path,
			Field:    "/metadata/name",
		})
	}
	if strings.TrimSpace(doc.Metadata.Namespace) == "" {
		out = append(out, Finding{
			Severity: SeverityError,
			Code:     CodeMissingRequiredField,
			Message:  "metadata.namespace must be present and non-empty",
			Path:     expect.Path,
			Field:    "/metadata/namespace",
		})
	}
	if doc.Spec.EndpointSelector == nil {
		out = append(out, Finding{
			Severity: SeverityError,
			Code:     CodeMissingRequiredField,
			Message:  "spec.endpointSelector is required for a policy document",
			Path:     expect.Path,
			Field:    "/spec/endpointSelector",
		})
	}
	if expect.Kind != "" && doc.Kind != "" && doc.Kind != expect.Kind {
		out = append(out, Finding{
			Severity: SeverityError,
			Code:     CodeUnexpectedKind,
			Message:  fmt.Sprintf("expected kind %q, found %q", expect.Kind, doc.Kind),
			Path:     expect.Path,
			Field:    "/kind",
		})
	}
	return out
}

func tierFindings(doc Document, expect Expectation) []Finding {
	var out []Finding
	if expect.Tier == policy.TierExternal {
		if strings.TrimSpace(doc.Metadata.Annotations["justification"]) == "" {
			out = append(out, Finding{
				Severity: SeverityError,
				Code:     CodeMissingJustification,
				Message:  "external-tier policies require a non-empty metadata.annotations.justification",
				Path:     expect.Path,
				Field:    "/metadata/annotations/justification",
			})
		}
	}
	ns := strings.TrimSpace(doc.Metadata.Namespace)
	if expect.Tenant != "" && ns != "" && ns != expect.Tenant {
		out = append(out, Finding{
			Severity: SeverityError,
			Code:     CodeNamespaceTenantMismatch,
			Message:  fmt.Sprintf("metadata.namespace %q does not match path tenant %q", ns, expect.Tenant),
			Path:     expect.Path,
			Field:    "/metadata/namespace",
		})
	}
	return out
}

func trafficFindings(doc Document, path string) []Finding {
	var out []Finding
	out = append(out, ruleFindings(doc.Spec.Ingress, "ingress", path)...)
	out = append(out, ruleFindings(doc.Spec.Egress, "egress", path)...)
	return out
}

func ruleFindings(rules []TrafficRule, direction, path string) []Finding {
	var out []Finding
	for i, rule := range rules {
		field := fmt.Sprintf("/spec/%s/%d", direction, i)
		if rule.targetsAll() {
			out = append(out, Finding{
				Severity: SeverityError,
				Code:     CodeDisallowedAllTarget,
				Message:  fmt.Sprintf("%s rule %d explicitly targets all peers", direction, i),
				Path:     path,
				Field:    field,
			})
			continue
		}
		if !rule.hasPeerRestriction() && !rule.hasPortRestriction() {
			out = append(out, Finding{
				Severity: SeverityWarning,
				Code:     CodeOverlyPermissiveRule,
				Message:  fmt.Sprintf("%s rule %d has no peer selector, FQDN, CIDR, or port restriction", direction, i),
				Path:     path,
				Field:    field,
			})
		}
	}
	return out
}

// HasBlocking reports whether any finding is error severity.
func HasBlocking(findings []Finding) bool {
	for _, f := range findings {
		if f.Severity == SeverityError {
			return true
		}
	}
	return false
}
