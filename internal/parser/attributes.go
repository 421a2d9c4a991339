package parser

import (
	"fmt"
	"math"
	"strconv"

	"github.com/dive-annotations/trackconv/internal/model"
)

// InferValue converts a raw string token into a typed value, inferring the
// datatype from its shape: the literals "true"/"false" become booleans,
// numeric literals become numbers, anything else stays text.
func InferValue(raw string) (datatype string, value any) {
	switch raw {
	case "true":
		return model.DatatypeBoolean, true
	case "false":
		return model.DatatypeBoolean, false
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return model.DatatypeNumber, f
	}
	return model.DatatypeText, raw
}

// inferJSONValue infers a datatype for an already-decoded JSON value.
// Integral 0/1 numbers are treated as boolean flags; strings go through
// the same shape inference as CSV tokens.
func inferJSONValue(v any) (datatype string, value any) {
	switch val := v.(type) {
	case bool:
		return model.DatatypeBoolean, val
	case float64:
		if val == math.Trunc(val) && (val == 0 || val == 1) {
			return model.DatatypeBoolean, val == 1
		}
		return model.DatatypeNumber, val
	case string:
		return InferValue(val)
	default:
		return model.DatatypeText, fmt.Sprintf("%v", val)
	}
}

// defineAttribute records an attribute definition in the document's side
// table. A name re-declared with a different datatype follows the
// configured conflict policy: error by default, or widen to text.
func (p *Parser) defineAttribute(doc *model.Document, belongsTo, name, datatype string) error {
	key := model.AttributeKey(belongsTo, name)
	def, ok := doc.Attributes[key]
	if !ok {
		doc.Attributes[key] = model.AttributeDefinition{
			Key:       key,
			Name:      name,
			BelongsTo: belongsTo,
			Datatype:  datatype,
		}
		return nil
	}
	if def.Datatype == datatype {
		return nil
	}
	if p.typeConflicts == TypeConflictCoerce {
		p.logger.Warn("Widening conflicting attribute to text",
			"attribute", name, "was", def.Datatype, "now", datatype)
		def.Datatype = model.DatatypeText
		doc.Attributes[key] = def
		return nil
	}
	return fmt.Errorf("%w: %q declared as both %s and %s",
		ErrAttributeTypeConflict, name, def.Datatype, datatype)
}
