// Package template compiles declarative pass templates into concrete pass
// content. Rendering is total: unresolved {{key}} placeholders pass through
// verbatim so partial data never blocks issuance.
package template

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/passmint/wallet-service/internal/domain"
)

// placeholderPattern matches {{key}} tokens; keys are word characters,
// dots and dashes. Surrounding whitespace inside the braces is tolerated.
var placeholderPattern = regexp.MustCompile(`\{\{\s*([\w.-]+)\s*\}\}`)

// RenderedField is one concrete field after substitution
type RenderedField struct {
	Key           string `json:"key"`
	Label         string `json:"label,omitempty"`
	Value         string `json:"value"`
	ChangeMessage string `json:"change_message,omitempty"`
	TextAlignment string `json:"text_alignment,omitempty"`
}

// RenderedFields is the compiled content of a pass
type RenderedFields struct {
	Header    []RenderedField `json:"header,omitempty"`
	Primary   []RenderedField `json:"primary,omitempty"`
	Secondary []RenderedField `json:"secondary,omitempty"`
	Auxiliary []RenderedField `json:"auxiliary,omitempty"`
	Back      []RenderedField `json:"back,omitempty"`
	// BarcodeMessage is the rendered barcode message template, empty when
	// the template has no barcode enabled
	BarcodeMessage string `json:"barcode_message,omitempty"`
}

// Substitute replaces every {{key}} token in s with the matching value from
// data. Unknown keys are left verbatim; the function never fails.
func Substitute(s string, data map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(s, func(match string) string {
		key := placeholderPattern.FindStringSubmatch(match)[1]
		if value, ok := data[key]; ok {
			return value
		}
		return match
	})
}

// Render compiles a template plus per-user data into concrete pass content
func Render(tpl *domain.Template, data map[string]string) *RenderedFields {
	out := &RenderedFields{
		Header:    renderGroup(tpl.Fields.Header, data),
		Primary:   renderGroup(tpl.Fields.Primary, data),
		Secondary: renderGroup(tpl.Fields.Secondary, data),
		Auxiliary: renderGroup(tpl.Fields.Auxiliary, data),
		Back:      renderGroup(tpl.Fields.Back, data),
	}
	if tpl.Barcode.Enabled {
		out.BarcodeMessage = Substitute(tpl.Barcode.MessageTemplate, data)
	}
	return out
}

func renderGroup(fields []domain.FieldDef, data map[string]string) []RenderedField {
	if len(fields) == 0 {
		return nil
	}
	out := make([]RenderedField, 0, len(fields))
	for _, f := range fields {
		out = append(out, RenderedField{
			Key:           f.Key,
			Label:         Substitute(f.Label, data),
			Value:         Substitute(f.ValueTemplate, data),
			ChangeMessage: f.ChangeMessage,
			TextAlignment: f.TextAlignment,
		})
	}
	return out
}

// ValidationResult reports template validation findings. Errors block
// activation; warnings do not.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// Validate checks a template's structural rules
func Validate(tpl *domain.Template) *ValidationResult {
	result := &ValidationResult{}

	if tpl.OrganizerID == "" {
		result.Errors = append(result.Errors, "organizer_id is required")
	}
	if tpl.Name == "" {
		result.Errors = append(result.Errors, "name is required")
	}
	if !tpl.Platform.Valid() {
		result.Errors = append(result.Errors, fmt.Sprintf("unknown platform %q", tpl.Platform))
	}

	// Field keys must be unique across all five groups
	seen := make(map[string]bool)
	for _, f := range tpl.Fields.All() {
		if f.Key == "" {
			result.Errors = append(result.Errors, "field with empty key")
			continue
		}
		if seen[f.Key] {
			result.Errors = append(result.Errors, fmt.Sprintf("duplicate field key %q", f.Key))
		}
		seen[f.Key] = true
	}

	if tpl.Barcode.Enabled && strings.TrimSpace(tpl.Barcode.MessageTemplate) == "" {
		result.Errors = append(result.Errors, "barcode is enabled but message template is empty")
	}

	for i, b := range tpl.Beacons {
		if strings.TrimSpace(b.ProximityUUID) == "" {
			result.Errors = append(result.Errors, fmt.Sprintf("beacon %d is missing a proximity UUID", i))
		}
	}

	if len(tpl.Fields.Primary) == 0 {
		result.Warnings = append(result.Warnings, "template has no primary fields")
	}
	if tpl.LocationTriggersOn && len(tpl.Locations) == 0 {
		result.Warnings = append(result.Warnings, "location triggers are enabled but no locations are configured")
	}
	if tpl.BeaconTriggersOn && len(tpl.Beacons) == 0 {
		result.Warnings = append(result.Warnings, "beacon triggers are enabled but no beacons are configured")
	}

	result.Valid = len(result.Errors) == 0
	return result
}

// ValidateData applies the template's per-field rules to render data.
// Violations are returned together; nothing is partially applied.
func ValidateData(tpl *domain.Template, data map[string]string) []string {
	var violations []string
	for _, rule := range tpl.Validation {
		value, present := data[rule.Key]
		if rule.Required && (!present || strings.TrimSpace(value) == "") {
			violations = append(violations, fmt.Sprintf("field %q is required", rule.Key))
			continue
		}
		if !present {
			continue
		}
		if rule.MaxLength > 0 && len(value) > rule.MaxLength {
			violations = append(violations, fmt.Sprintf("field %q exceeds max length %d", rule.Key, rule.MaxLength))
		}
		if rule.Pattern != "" {
			re, err := regexp.Compile(rule.Pattern)
			if err != nil {
				violations = append(violations, fmt.Sprintf("field %q has an invalid pattern", rule.Key))
				continue
			}
			if !re.MatchString(value) {
				violations = append(violations, fmt.Sprintf("field %q does not match pattern", rule.Key))
			}
		}
	}
	return violations
}
