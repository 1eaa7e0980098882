package cfdi

import (
	"strconv"
)

// Type coercion is best-effort by design: real world documents contain
// placeholder or malformed numeric text and we prefer "typed when possible,
// raw string otherwise" over rejecting the whole document. A failed parse is
// not an error, it is a no-op preserving the original representation.

// FieldTypes is a data-driven table of field names to coerce. Anything not
// listed stays a string.
type FieldTypes struct {
	// Float and Int apply to the root mapping.
	Float []string
	Int   []string
	// ConceptFloat applies to every concept record.
	ConceptFloat []string
	// TaxFloat applies to every tax row inside concept Traslados/Retenciones.
	TaxFloat []string
}

// DefaultFieldTypes returns the coercion table for CFDI 4.0 fields.
func DefaultFieldTypes() *FieldTypes {
	return &FieldTypes{
		Float: []string{
			"Subtotal", "Total", "VersionCFDI", "DI", "VersionComplemento",
			"CantidadConceptos", "ValorUnitarioConceptos", "ImporteConceptos",
			"ImpuestosTotalImpuestosTrasladados",
			"BaseTraslado", "ImporteTraslado", "ImpuestoTraslado", "TasaOCuotaTraslado",
			"TimbreVersionTimbre", "Descuento", "DescuentoConceptos",
			"CartaPorteVersion", "CartaPorteTotalDistRec",
		},
		Int: []string{
			"Folio", "LugarExpedicion", "EmisorRegimenFiscal",
			"ReceptorDomicilioFiscalReceptor", "ReceptorRegimenFiscalReceptor",
		},
		ConceptFloat: []string{"Cantidad", "ValorUnitario", "Importe", "Descuento"},
		TaxFloat:     []string{"Base", "Importe", "TasaOCuota"},
	}
}

// Coerce converts listed fields of the document, its concept records and
// their tax rows in place. Never fails, unparseable values keep their original
// string form byte for byte.
func (t *FieldTypes) Coerce(doc *Document) {
	if doc == nil {
		return
	}

	for _, name := range t.Float {
		if v, ok := doc.Fields[name]; ok {
			doc.Fields[name] = toFloat(v)
		}
	}
	for _, name := range t.Int {
		if v, ok := doc.Fields[name]; ok {
			doc.Fields[name] = toInt(v)
		}
	}

	for _, c := range doc.Conceptos {
		for _, name := range t.ConceptFloat {
			if v, ok := c.Fields[name]; ok {
				c.Fields[name] = toFloat(v)
			}
		}
		t.coerceTaxRows(c.Impuestos.Traslados)
		t.coerceTaxRows(c.Impuestos.Retenciones)
	}
}

func (t *FieldTypes) coerceTaxRows(rows []TaxRow) {
	for _, row := range rows {
		for _, name := range t.TaxFloat {
			if v, ok := row[name]; ok {
				row[name] = toFloat(v)
			}
		}
	}
}

// toFloat converts a value to float64 returning the original when conversion
// fails.
func toFloat(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return v
	}
	return f
}

// toInt converts a value to int64 returning the original when conversion
// fails.
func toInt(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return v
	}
	return n
}
