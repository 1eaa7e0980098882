// Package cfdi extracts structured data from Mexican SAT CFDI (Comprobante
// Fiscal Digital por Internet) XML documents and flattens their namespaced
// attribute trees into plain key-value records suitable for tabular analysis.
//
// Supports CFDI 4.0 and extracts attributes from:
//   - Comprobante (root)
//   - Emisor (issuer) and Receptor (receiver)
//   - Conceptos (items/products/services) with per-concept taxes
//   - Impuestos (taxes at document level)
//   - Complemento blocks (TimbreFiscalDigital, Pagos, Nomina, CartaPorte and
//     anything else, generically)
//   - CfdiRelacionados (related CFDIs)
//   - Addenda (issuer defined free-form data)
package cfdi

// Document is the result of extracting one CFDI. It is fully populated by
// ParseInvoice and immutable afterwards except for in-place type coercion.
type Document struct {
	// Fields is the flat root mapping. Values are strings as read from the
	// document until FieldTypes.Coerce converts the configured subset to
	// float64/int64. A few keys hold nested structures (PagosDetalle).
	Fields map[string]any

	// Conceptos holds one record per line item in document order.
	Conceptos []*Concepto

	// Relacionados lists UUIDs of related CFDIs in document order.
	Relacionados []string

	// Collisions records every root mapping key that was written more than
	// once, so callers can assert on naming conflicts instead of losing them
	// to a silent overwrite.
	Collisions []Collision
}

// Concepto is a single line item. Taxes are kept apart from the attribute
// mapping since they are repeating rows, not scalars.
type Concepto struct {
	Fields    map[string]any
	Impuestos ConceptoImpuestos
}

// ConceptoImpuestos groups concept level tax rows by kind.
type ConceptoImpuestos struct {
	Traslados   []TaxRow
	Retenciones []TaxRow
}

// TaxRow is one Traslado or Retencion element, attributes keyed by local name.
type TaxRow map[string]any

// Pago is one payment record from the Pagos 2.0 complement together with the
// documents it covers.
type Pago struct {
	Fields                 map[string]string
	DocumentosRelacionados []map[string]string
}

// Collision describes a duplicate write to a root mapping key. The last value
// wins, previous one is preserved here.
type Collision struct {
	Key      string
	Previous any
	Value    any
}

func newDocument() *Document {
	return &Document{
		Fields: make(map[string]any),
	}
}

// setField stores a value under key recording a collision event when the key
// is already present.
func (d *Document) setField(key string, value any) {
	if prev, exists := d.Fields[key]; exists {
		d.Collisions = append(d.Collisions, Collision{Key: key, Previous: prev, Value: value})
	}
	d.Fields[key] = value
}

// UUID returns the fiscal folio from TimbreFiscalDigital if present.
func (d *Document) UUID() string {
	if v, ok := d.Fields["TimbreUUID"].(string); ok {
		return v
	}
	return ""
}

// Total returns the total amount of the CFDI. Meaningful after coercion.
func (d *Document) Total() (float64, bool) {
	v, ok := d.Fields["Total"].(float64)
	return v, ok
}

// EmisorRFC returns the RFC of the issuer.
func (d *Document) EmisorRFC() string {
	if v, ok := d.Fields["EmisorRfc"].(string); ok {
		return v
	}
	return ""
}

// ReceptorRFC returns the RFC of the receiver.
func (d *Document) ReceptorRFC() string {
	if v, ok := d.Fields["ReceptorRfc"].(string); ok {
		return v
	}
	return ""
}

// Fecha returns the issuance date as recorded in the document.
func (d *Document) Fecha() string {
	if v, ok := d.Fields["Fecha"].(string); ok {
		return v
	}
	return ""
}

// TipoDeComprobante returns the CFDI kind (I=Ingreso, E=Egreso, T=Traslado,
// N=Nomina, P=Pago).
func (d *Document) TipoDeComprobante() string {
	if v, ok := d.Fields["TipoDeComprobante"].(string); ok {
		return v
	}
	return ""
}
