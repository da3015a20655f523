package registry

import "github.com/qcline/qcline/pkg/models"

func f64(v float64) *float64 { return &v }

func okDefect() []models.Choice {
	return []models.Choice{
		{Label: "OK", Value: "norm"},
		{Label: "Defect", Value: "defect"},
	}
}

// processDefinitions returns the fixed step chains for the four control
// stages. Any change to a chain's shape requires bumping SchemaVersion.
func processDefinitions() []*models.ProcessDefinition {
	return []*models.ProcessDefinition{
		{
			Name:  "forming",
			Title: "Stage 1: Forming",
			Steps: []models.StepDescriptor{
				{
					Key:        "shell_diameter",
					Title:      "Shell diameter (mm)",
					Prompt:     "Enter the shell diameter (mm):",
					Kind:       models.ValueKindNumeric,
					Validation: models.Validation{Min: f64(1), Max: f64(500)},
				},
				{
					Key:        "sample_weight",
					Title:      "Sample weight (g)",
					Prompt:     "Enter the sample weight (g):",
					Kind:       models.ValueKindNumeric,
					Validation: models.Validation{Min: f64(1), Max: f64(100000)},
				},
				{
					Key:        "stuffing_diameter",
					Title:      "Diameter after stuffing (mm)",
					Prompt:     "Enter the diameter after stuffing (mm):",
					Kind:       models.ValueKindNumeric,
					Validation: models.Validation{Min: f64(1), Max: f64(500)},
				},
				{
					Key:        "stuffing_length",
					Title:      "Length after stuffing (mm)",
					Prompt:     "Enter the length after stuffing (mm):",
					Kind:       models.ValueKindNumeric,
					Validation: models.Validation{Min: f64(1), Max: f64(10000)},
				},
				{
					Key:           "mince_contamination",
					Title:         "Mince contamination",
					Prompt:        "Assess mince contamination:",
					Kind:          models.ValueKindChoice,
					Choices:       okDefect(),
					PhotoOnDefect: true,
				},
				{
					Key:           "hanging_quality",
					Title:         "Hanging quality",
					Prompt:        "Assess the hanging quality:",
					Kind:          models.ValueKindChoice,
					Choices:       okDefect(),
					PhotoOnDefect: true,
				},
			},
		},
		{
			Name:  "accumulation",
			Title: "Stage 2: Accumulation buffer",
			Steps: []models.StepDescriptor{
				{
					Key:        "temperature",
					Title:      "Product temperature before packaging (°C)",
					Prompt:     "Enter the product temperature before packaging (°C):",
					Kind:       models.ValueKindNumeric,
					Validation: models.Validation{Min: f64(-50), Max: f64(200)},
				},
				{
					Key:           "contamination",
					Title:         "Contamination",
					Prompt:        "Assess contamination:",
					Kind:          models.ValueKindChoice,
					Choices:       okDefect(),
					PhotoOnDefect: true,
				},
				{
					Key:    "wrinkling",
					Title:  "Wrinkling",
					Prompt: "Assess wrinkling:",
					Kind:   models.ValueKindChoice,
					Choices: []models.Choice{
						{Label: "None", Value: "absent"},
						{Label: "Minor", Value: "minor"},
						{Label: "Severe", Value: "major"},
					},
					PhotoAlways: true,
				},
				{
					Key:           "smoking_color",
					Title:         "Smoking color (colorimeter)",
					Prompt:        "Assess the smoking color:",
					Kind:          models.ValueKindChoice,
					Choices:       okDefect(),
					PhotoOnDefect: true,
				},
				{
					Key:           "structure",
					Title:         "Structure development",
					Prompt:        "Assess the structure development:",
					Kind:          models.ValueKindChoice,
					Choices:       okDefect(),
					PhotoOnDefect: true,
				},
				{
					Key:         "porosity",
					Title:       "Porosity",
					Prompt:      "Assess porosity:",
					Kind:        models.ValueKindChoice,
					Choices:     okDefect(),
					PhotoAlways: true,
				},
				{
					Key:           "slips",
					Title:         "Slip marks",
					Prompt:        "Assess slip marks:",
					Kind:          models.ValueKindChoice,
					Choices:       okDefect(),
					PhotoOnDefect: true,
				},
				{
					Key:    "print_match",
					Title:  "Casing print match",
					Prompt: "Does the casing print match the product?",
					Kind:   models.ValueKindChoice,
					Choices: []models.Choice{
						{Label: "Matches", Value: "absent"},
						{Label: "Mismatch", Value: "present"},
					},
					PhotoOnDefect: true,
				},
				{
					Key:           "shell_adhesion",
					Title:         "Shell adhesion",
					Prompt:        "Assess shell adhesion:",
					Kind:          models.ValueKindChoice,
					Choices:       okDefect(),
					PhotoOnDefect: true,
				},
				{
					Key:             "organoleptics",
					Title:           "Organoleptics",
					Prompt:          "Assess organoleptics (spice set conformity):",
					Kind:            models.ValueKindChoice,
					Choices:         okDefect(),
					CommentOnDefect: true,
					CommentPrompt:   "Describe the organoleptic defect:",
				},
			},
		},
		{
			Name:  "packaging",
			Title: "Stage 3: Packaging",
			Steps: []models.StepDescriptor{
				{
					Key:     "gas_mixture",
					Title:   "Gas mixture ratio",
					Prompt:  "Assess the gas mixture ratio:",
					Kind:    models.ValueKindChoice,
					Choices: okDefect(),
				},
				{
					Key:    "package_integrity",
					Title:  "Package integrity",
					Prompt: "Is the package integrity compromised?",
					Kind:   models.ValueKindChoice,
					Choices: []models.Choice{
						{Label: "No damage", Value: "no"},
						{Label: "Damaged", Value: "yes"},
					},
					PhotoOnDefect: true,
				},
				{
					Key:        "weight_operator",
					Title:      "Weight, operator (g)",
					Prompt:     "Enter the weight measured by the operator (g):",
					Kind:       models.ValueKindNumeric,
					Validation: models.Validation{Min: f64(1), Max: f64(100000)},
				},
				{
					Key:        "weight_technologist",
					Title:      "Weight, technologist (g)",
					Prompt:     "Enter the weight measured by the quality technologist (g):",
					Kind:       models.ValueKindNumeric,
					Validation: models.Validation{Min: f64(1), Max: f64(100000)},
				},
			},
		},
		{
			Name:  "dispatch",
			Title: "Stage 4: Dispatch warehouse",
			Steps: []models.StepDescriptor{
				{
					Key:    "inserts_check",
					Title:  "Insert check",
					Prompt: "Assess the package inserts:",
					Kind:   models.ValueKindChoice,
					Choices: []models.Choice{
						{Label: "Conforms", Value: "ok"},
						{Label: "Does not conform", Value: "not_ok"},
					},
					PhotoOnDefect: true,
				},
			},
		},
	}
}
