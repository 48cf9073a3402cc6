package llm

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/jonathan/queryforge/internal/db"
	"github.com/jonathan/queryforge/internal/schemas"
)

// StepSpec is one step of a parsed oracle response.
type StepSpec struct {
	StepNumber  int    `json:"step_number" validate:"required,min=1"`
	Type        string `json:"type" validate:"required,oneof=shell query"`
	Content     string `json:"content" validate:"required"`
	Description string `json:"description"`
}

type pipelineResponse struct {
	Pipeline []StepSpec `json:"pipeline" validate:"required,min=1,dive"`
}

var validate = validator.New()

// ParsePipelineResponse parses an oracle generation response into step inputs.
// It tolerates markdown wrappers and surrounding prose, then enforces the
// response contract: sequential 1-based step numbers, known step types, and
// non-empty content.
func ParsePipelineResponse(responseText string) ([]db.StepInput, error) {
	payload, err := extractPayload(responseText)
	if err != nil {
		return nil, err
	}

	if err := schemas.ValidateJSONString(schemas.PipelineResponse, payload); err != nil {
		return nil, fmt.Errorf("response failed schema validation: %w", err)
	}

	var resp pipelineResponse
	if err := json.Unmarshal([]byte(payload), &resp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if err := validate.Struct(&resp); err != nil {
		return nil, fmt.Errorf("response failed validation: %w", err)
	}

	steps := make([]db.StepInput, 0, len(resp.Pipeline))
	for i, spec := range resp.Pipeline {
		if spec.StepNumber != i+1 {
			return nil, fmt.Errorf("step_number must be sequential: step %d has step_number %d", i+1, spec.StepNumber)
		}
		steps = append(steps, db.StepInput{
			StepNumber:  spec.StepNumber,
			Kind:        spec.Type,
			Content:     spec.Content,
			Description: spec.Description,
		})
	}
	return steps, nil
}

// RepairFix is a parsed oracle repair response.
type RepairFix struct {
	PatchedCode string `json:"patched_code" validate:"required"`
	FixReason   string `json:"fix_reason"`
}

// ParseRepairResponse parses an oracle repair response.
func ParseRepairResponse(responseText string) (*RepairFix, error) {
	payload, err := extractPayload(responseText)
	if err != nil {
		return nil, err
	}

	if err := schemas.ValidateJSONString(schemas.RepairResponse, payload); err != nil {
		return nil, fmt.Errorf("response failed schema validation: %w", err)
	}

	var fix RepairFix
	if err := json.Unmarshal([]byte(payload), &fix); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if err := validate.Struct(&fix); err != nil {
		return nil, fmt.Errorf("response failed validation: %w", err)
	}
	if fix.FixReason == "" {
		fix.FixReason = "No explanation provided"
	}
	return &fix, nil
}

// extractPayload strips markdown wrappers and, failing a direct parse, falls
// back to balanced-brace extraction for responses wrapped in prose.
func extractPayload(responseText string) (string, error) {
	cleaned := CleanJSONBlock(responseText)
	if json.Valid([]byte(cleaned)) {
		return cleaned, nil
	}

	extracted := ExtractJSONObject(cleaned)
	if extracted == "" {
		return "", fmt.Errorf("no valid JSON found in response")
	}
	if !json.Valid([]byte(extracted)) {
		return "", fmt.Errorf("extracted JSON object is malformed")
	}
	return extracted, nil
}
