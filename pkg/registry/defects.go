package registry

// defectValues maps step keys to the canonical choice values that count as a
// quality deviation. Steps absent from the table never classify as defects;
// wrinkling is listed empty on purpose — it always requires a photo but no
// grade of it is a defect.
var defectValues = map[string]map[string]struct{}{
	"mince_contamination": {"defect": {}},
	"hanging_quality":     {"defect": {}},
	"contamination":       {"defect": {}},
	"smoking_color":       {"defect": {}},
	"structure":           {"defect": {}},
	"porosity":            {"defect": {}},
	"slips":               {"defect": {}},
	"print_match":         {"present": {}},
	"shell_adhesion":      {"defect": {}},
	"organoleptics":       {"defect": {}},
	"gas_mixture":         {"defect": {}},
	"package_integrity":   {"yes": {}},
	"inserts_check":       {"not_ok": {}},
	"wrinkling":           {},
}

// IsDefect reports whether the canonical value of a choice step represents a
// quality deviation. It is only consulted for steps carrying a conditional
// photo or comment flag.
func IsDefect(stepKey, value string) bool {
	values, ok := defectValues[stepKey]
	if !ok {
		return false
	}

	_, defect := values[value]

	return defect
}
