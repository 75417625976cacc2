package records

import "strings"

// The ontology's record shapes have drifted: real data may sit at the top
// level or under a "properties" envelope, and most fields have accumulated
// historical spellings. Normalization is a data-driven probe over ordered
// alias tables; the first present, non-empty source wins and nothing is
// ever invented.

// aliasTables maps each object type's canonical output fields to their
// ordered source aliases. The canonical name itself is always first so a
// record that is already normal passes through unchanged.
var aliasTables = map[ObjectType]map[string][]string{
	TypeCondition: {
		"conditionId":    {"conditionId", "condition_id", "id", "__primaryKey", "__rid"},
		"conditionName":  {"conditionName", "condition_name", "name", "display"},
		"clinicalStatus": {"clinicalStatus", "clinical_status", "status"},
		"code":           {"code", "icd10Code", "icd10_code"},
		"onsetDate":      {"onsetDate", "onset_date", "recordedDate", "recorded_date", "date"},
		"abatementDate":  {"abatementDate", "abatement_date", "resolvedDate"},
	},
	TypeObservation: {
		"observationId": {"observationId", "observation_id", "vital_id", "id", "__primaryKey", "__rid"},
		"category":      {"category", "observationCategory", "category_display"},
		"code":          {"code", "loincCode", "loinc_code"},
		"display":       {"display", "codeDisplay", "name"},
		"value":         {"value", "valueQuantity", "value_quantity", "result"},
		"unit":          {"unit", "valueUnit", "units"},
		"effectiveDate": {"effectiveDate", "effective_date", "observationDate", "date"},
	},
	TypeProcedure: {
		"procedureId":   {"procedureId", "procedure_id", "id", "__primaryKey", "__rid"},
		"procedureName": {"procedureName", "procedure_name", "name", "display"},
		"status":        {"status", "procedureStatus"},
		"code":          {"code", "cptCode", "cpt_code"},
		"performedDate": {"performedDate", "performed_date", "procedureDate", "date"},
	},
	TypeImmunization: {
		"immunizationId": {"immunizationId", "immunization_id", "id", "__primaryKey", "__rid"},
		"vaccineName":    {"vaccineName", "vaccine_name", "name", "display"},
		"cvxCode":        {"cvxCode", "cvx_code", "code"},
		"status":         {"status", "immunizationStatus"},
		"administeredDate": {
			"administeredDate", "administered_date", "occurrenceDate", "date",
		},
		"primarySeries": {"primarySeries", "primary_series", "isPrimarySeries"},
	},
	TypeAllergy: {
		"allergyId":    {"allergyId", "allergy_id", "id", "__primaryKey", "__rid"},
		"allergen":     {"allergen", "allergenName", "substance", "display"},
		"reaction":     {"reaction", "reactionDescription", "manifestation"},
		"severity":     {"severity", "criticality"},
		"active":       {"active", "isActive", "clinicalStatus"},
		"recordedDate": {"recordedDate", "recorded_date", "onsetDate", "date"},
	},
	TypeClinicalNote: {
		"noteId":     {"noteId", "note_id", "id", "__primaryKey", "__rid"},
		"title":      {"title", "noteTitle", "name"},
		"noteText":   {"noteText", "note_text", "text", "content"},
		"noteType":   {"noteType", "note_type", "category"},
		"authoredOn": {"authoredOn", "authored_on", "noteDate", "date"},
	},
	TypeEncounter: {
		"encounterId":   {"encounterId", "encounter_id", "id", "__primaryKey", "__rid"},
		"encounterType": {"encounterType", "encounter_type", "class", "type"},
		"status":        {"status", "encounterStatus"},
		"location":      {"location", "facility", "locationName"},
		"startDate":     {"startDate", "start_date", "periodStart", "admissionDate", "date"},
		"endDate":       {"endDate", "end_date", "periodEnd", "dischargeDate"},
	},
}

// boolFields lists canonical fields carried by the platform in either
// native boolean or textual true/false/yes/no form.
var boolFields = map[ObjectType][]string{
	TypeImmunization: {"primarySeries"},
	TypeAllergy:      {"active"},
}

// containerKeys are the response keys under which the platform has been
// observed to place result records. All of them are checked and
// concatenated.
var containerKeys = []string{"data", "objects", "results", "entries"}

// pageTokenKeys are the response keys that may carry the next-page token.
var pageTokenKeys = []string{"nextPageToken", "next_page_token", "pageToken"}

// Normalize reshapes one raw record onto the canonical field set for the
// object type. It is pure and total: unknown shapes produce partial
// records, never errors.
func Normalize(t ObjectType, raw map[string]interface{}) NormalizedRecord {
	table, ok := aliasTables[t]
	if !ok {
		out := make(NormalizedRecord, len(raw))
		for k, v := range raw {
			out[k] = v
		}
		return out
	}

	props, _ := raw["properties"].(map[string]interface{})

	out := make(NormalizedRecord, len(table))
	for canonical, aliases := range table {
		if v, ok := probe(props, raw, aliases); ok {
			out[canonical] = v
		}
	}

	for _, field := range boolFields[t] {
		if v, ok := out[field]; ok {
			if b, ok := coerceBool(v); ok {
				out[field] = b
			}
		}
	}

	return out
}

// probe returns the first present, non-nil, non-empty value among the
// aliases, preferring the properties envelope over the flat record for
// each alias since the envelope is the platform's explicit placement.
func probe(props, raw map[string]interface{}, aliases []string) (interface{}, bool) {
	for _, alias := range aliases {
		if props != nil {
			if v, ok := present(props[alias]); ok {
				return v, true
			}
		}
		if v, ok := present(raw[alias]); ok {
			return v, true
		}
	}
	return nil, false
}

func present(v interface{}) (interface{}, bool) {
	switch t := v.(type) {
	case nil:
		return nil, false
	case string:
		if t == "" {
			return nil, false
		}
		return t, true
	default:
		return v, true
	}
}

// coerceBool maps native booleans and the platform's textual boolean
// spellings onto bool. Unrecognized values are left untouched.
func coerceBool(v interface{}) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "yes":
			return true, true
		case "false", "no":
			return false, true
		}
	}
	return false, false
}

// ExtractRecords collects record objects from every known container key in
// a search response body, concatenated in container order. An empty page
// under any container key yields an empty, non-nil slice.
func ExtractRecords(body map[string]interface{}) []map[string]interface{} {
	records := make([]map[string]interface{}, 0)
	for _, key := range containerKeys {
		items, ok := body[key].([]interface{})
		if !ok {
			continue
		}
		for _, item := range items {
			if rec, ok := item.(map[string]interface{}); ok {
				records = append(records, rec)
			}
		}
	}
	return records
}

// NextPageToken returns the next-page token from whichever response field
// the platform populated, or "" when the page is the last.
func NextPageToken(body map[string]interface{}) string {
	for _, key := range pageTokenKeys {
		if tok, ok := body[key].(string); ok && tok != "" {
			return tok
		}
	}
	return ""
}
