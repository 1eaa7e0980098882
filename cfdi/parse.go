package cfdi

import (
	"fmt"
	"io"
	"strings"

	"github.com/beevik/etree"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/net/html/charset"
)

// XML extraction for CFDI documents. Every sub-extraction step is optional,
// absent elements simply contribute nothing - real world invoices omit whole
// sections depending on their kind.

// Options control extraction. Namespace URIs come from configuration so newer
// schema revisions can be substituted without code changes.
type Options struct {
	// Namespaces maps well known prefixes (cfdi, tfd, pago20, nomina12,
	// cartaporte30, leyendasFisc, xsi) to their URIs. Matching is done by URI,
	// prefixes only address this table.
	Namespaces map[string]string

	// ConceptSeparator joins per-concept values into <Field>Conceptos keys.
	ConceptSeparator string

	// AggregateFields lists concept attributes to aggregate into the root
	// mapping for backward compatibility.
	AggregateFields []string
}

// DefaultOptions returns extraction options for CFDI 4.0.
func DefaultOptions() Options {
	return Options{
		Namespaces: map[string]string{
			"cfdi":         "http://www.sat.gob.mx/cfd/4",
			"tfd":          "http://www.sat.gob.mx/TimbreFiscalDigital",
			"pago20":       "http://www.sat.gob.mx/Pagos20",
			"nomina12":     "http://www.sat.gob.mx/nomina12",
			"cartaporte30": "http://www.sat.gob.mx/CartaPorte30",
			"leyendasFisc": "http://www.sat.gob.mx/leyendasFiscales",
			"xsi":          "http://www.w3.org/2001/XMLSchema-instance",
		},
		ConceptSeparator: " | ",
		AggregateFields: []string{
			"ClaveProdServ", "NoIdentificacion", "Cantidad", "ClaveUnidad",
			"Unidad", "Descripcion", "ValorUnitario", "Importe", "Descuento", "ObjetoImp",
		},
	}
}

// complementPrefixes pins known complement tags to their namespace prefix so
// an unrelated schema reusing a tag name is still treated generically.
var complementPrefixes = map[string]string{
	"TimbreFiscalDigital": "tfd",
	"Pagos":               "pago20",
	"Nomina":              "nomina12",
	"CartaPorte":          "cartaporte30",
}

// ReadInvoice parses raw document bytes and extracts a Document. Input that is
// not well-formed XML yields MalformedDocumentError.
func ReadInvoice(r io.Reader, opts Options, log *zap.Logger) (*Document, error) {
	doc := etree.NewDocument()
	doc.ReadSettings = etree.ReadSettings{
		CharsetReader: charset.NewReaderLabel,
	}
	if _, err := doc.ReadFrom(r); err != nil {
		return nil, &MalformedDocumentError{Err: err}
	}
	return ParseInvoice(doc, opts, log)
}

// ParseInvoice walks the etree DOM and flattens the namespaced attribute tree
// into a Document. Extraction is pure and deterministic, identical input
// always yields an identical result.
func ParseInvoice(doc *etree.Document, opts Options, log *zap.Logger) (*Document, error) {
	if doc == nil {
		return nil, fmt.Errorf("nil document")
	}
	root := doc.Root()
	if root == nil {
		return nil, &MalformedDocumentError{Err: fmt.Errorf("document has no root element")}
	}
	if root.Tag != "Comprobante" {
		// tolerate - future schema revisions may rename, all steps below are
		// best-effort anyway
		log.Warn("Unexpected root element, extracting anyway", zap.String("tag", root.Tag))
	}

	p := &parser{out: newDocument(), opts: opts, log: log}

	p.extractComprobante(root)
	p.extractEmisor(root)
	p.extractReceptor(root)
	p.extractConceptos(root)
	p.extractImpuestosGlobal(root)
	p.extractComplemento(root)
	p.extractRelacionados(root)
	p.extractAddenda(root)

	return p.out, nil
}

type parser struct {
	out  *Document
	opts Options
	log  *zap.Logger
}

// child returns the first child element with the given local tag belonging to
// the namespace registered under prefix. Elements without resolvable
// namespace are matched by tag alone to stay tolerant of sloppy producers.
func (p *parser) child(parent *etree.Element, prefix, local string) *etree.Element {
	for _, el := range parent.ChildElements() {
		if p.matches(el, prefix, local) {
			return el
		}
	}
	return nil
}

func (p *parser) children(parent *etree.Element, prefix, local string) []*etree.Element {
	var out []*etree.Element
	for _, el := range parent.ChildElements() {
		if p.matches(el, prefix, local) {
			out = append(out, el)
		}
	}
	return out
}

func (p *parser) matches(el *etree.Element, prefix, local string) bool {
	if el.Tag != local {
		return false
	}
	uri, known := p.opts.Namespaces[prefix]
	if !known {
		return true
	}
	// match on the resolved URI, a familiar prefix bound to a foreign
	// namespace is somebody else's element
	elURI := el.NamespaceURI()
	return elURI == "" || elURI == uri
}

// eachAttr visits every real attribute of an element with its cleaned local
// name, skipping namespace declarations and attributes matching the skip
// policy (Sello, Certificado and other schema/crypto metadata).
func eachAttr(el *etree.Element, fn func(name, value string)) {
	for _, a := range el.Attr {
		if a.Space == "xmlns" || (a.Space == "" && a.Key == "xmlns") {
			continue
		}
		name := cleanKey(a.Key)
		if shouldSkip(name) || shouldSkip(a.FullKey()) {
			continue
		}
		fn(name, a.Value)
	}
}

// attrMap collects all attributes of an element into a plain map.
func attrMap(el *etree.Element) map[string]string {
	out := make(map[string]string, len(el.Attr))
	eachAttr(el, func(name, value string) {
		out[name] = value
	})
	return out
}

// extractComprobante extracts all attributes from the root element: Version,
// Serie, Folio, Fecha, SubTotal, Moneda, TipoCambio, Total, TipoDeComprobante,
// Exportacion, MetodoPago, FormaPago, LugarExpedicion, Descuento and so on.
func (p *parser) extractComprobante(root *etree.Element) {
	eachAttr(root, func(name, value string) {
		p.out.setField(rootRule.fieldKey(name), value)
	})
}

// extractEmisor extracts issuer information: Rfc, Nombre, RegimenFiscal.
func (p *parser) extractEmisor(root *etree.Element) {
	emisor := p.child(root, "cfdi", "Emisor")
	if emisor == nil {
		return
	}
	eachAttr(emisor, func(name, value string) {
		p.out.setField(emisorRule.fieldKey(name), value)
	})
}

// extractReceptor extracts receiver information: Rfc, Nombre,
// DomicilioFiscalReceptor, RegimenFiscalReceptor, UsoCFDI.
func (p *parser) extractReceptor(root *etree.Element) {
	receptor := p.child(root, "cfdi", "Receptor")
	if receptor == nil {
		return
	}
	eachAttr(receptor, func(name, value string) {
		p.out.setField(receptorRule.fieldKey(name), value)
	})
}

// extractConceptos collects every line item with its attributes, concept level
// taxes and the optional InformacionAduanera, CuentaPredial and
// ACuentaTerceros children, then aggregates common fields into the root
// mapping.
func (p *parser) extractConceptos(root *etree.Element) {
	conceptos := p.child(root, "cfdi", "Conceptos")
	if conceptos == nil {
		return
	}

	for _, el := range p.children(conceptos, "cfdi", "Concepto") {
		c := &Concepto{Fields: attrMap2Any(el)}
		c.Impuestos = p.extractImpuestosConcepto(el)

		if aduanera := p.children(el, "cfdi", "InformacionAduanera"); len(aduanera) > 0 {
			rows := make([]map[string]string, 0, len(aduanera))
			for _, info := range aduanera {
				rows = append(rows, attrMap(info))
			}
			c.Fields["InformacionAduanera"] = rows
		}
		if predial := p.child(el, "cfdi", "CuentaPredial"); predial != nil {
			c.Fields["CuentaPredial"] = attrMap(predial)
		}
		if terceros := p.child(el, "cfdi", "ACuentaTerceros"); terceros != nil {
			c.Fields["ACuentaTerceros"] = attrMap(terceros)
		}

		p.out.Conceptos = append(p.out.Conceptos, c)
	}

	p.aggregateConceptos()
}

func attrMap2Any(el *etree.Element) map[string]any {
	out := make(map[string]any, len(el.Attr))
	eachAttr(el, func(name, value string) {
		out[name] = value
	})
	return out
}

// extractImpuestosConcepto extracts concept level tax rows, Traslados
// (transferred taxes like IVA) and Retenciones (withheld taxes).
func (p *parser) extractImpuestosConcepto(concepto *etree.Element) ConceptoImpuestos {
	var taxes ConceptoImpuestos

	impuestos := p.child(concepto, "cfdi", "Impuestos")
	if impuestos == nil {
		return taxes
	}

	if traslados := p.child(impuestos, "cfdi", "Traslados"); traslados != nil {
		for _, el := range p.children(traslados, "cfdi", "Traslado") {
			taxes.Traslados = append(taxes.Traslados, TaxRow(attrMap2Any(el)))
		}
	}
	if retenciones := p.child(impuestos, "cfdi", "Retenciones"); retenciones != nil {
		for _, el := range p.children(retenciones, "cfdi", "Retencion") {
			taxes.Retenciones = append(taxes.Retenciones, TaxRow(attrMap2Any(el)))
		}
	}
	return taxes
}

// aggregateConceptos joins common concept fields into single root keys
// (<Field>Conceptos) for backward compatibility with flat consumers.
func (p *parser) aggregateConceptos() {
	if len(p.out.Conceptos) == 0 {
		return
	}
	for _, field := range p.opts.AggregateFields {
		var values []string
		for _, c := range p.out.Conceptos {
			if v, ok := c.Fields[field]; ok {
				s := fmt.Sprint(v)
				if s != "" {
					values = append(values, s)
				}
			}
		}
		if len(values) > 0 {
			p.out.setField(field+"Conceptos", strings.Join(values, p.opts.ConceptSeparator))
		}
	}
}

// extractImpuestosGlobal extracts document level taxes:
// TotalImpuestosRetenidos, TotalImpuestosTrasladados and the detailed
// Traslado/Retencion rows. Repeating rows are disambiguated with an index
// suffix instead of overwriting, the first occurrence keeps the bare name.
func (p *parser) extractImpuestosGlobal(root *etree.Element) {
	impuestos := p.child(root, "cfdi", "Impuestos")
	if impuestos == nil {
		return
	}

	eachAttr(impuestos, func(name, value string) {
		p.out.setField(impuestosRule.fieldKey(name), value)
	})

	if retenciones := p.child(impuestos, "cfdi", "Retenciones"); retenciones != nil {
		for idx, el := range p.children(retenciones, "cfdi", "Retencion") {
			eachAttr(el, func(name, value string) {
				p.out.setField(indexedKey(name+"Retencion", idx), value)
			})
		}
	}
	if traslados := p.child(impuestos, "cfdi", "Traslados"); traslados != nil {
		for idx, el := range p.children(traslados, "cfdi", "Traslado") {
			eachAttr(el, func(name, value string) {
				p.out.setField(indexedKey(name+"Traslado", idx), value)
			})
		}
	}
}

// extractComplemento dispatches over complement children: four registered
// supplement types get their dedicated prefixes, anything unregistered is
// extracted generically under its own cleaned tag name so unknown supplement
// schemas never crash extraction.
func (p *parser) extractComplemento(root *etree.Element) {
	complemento := p.child(root, "cfdi", "Complemento")
	if complemento == nil {
		return
	}

	for _, el := range complemento.ChildElements() {
		rule, known := knownComplements[el.Tag]
		if known {
			// tag registered but foreign namespace - treat generically
			if prefix, ok := complementPrefixes[el.Tag]; ok && !p.matches(el, prefix, el.Tag) {
				known = false
			}
		}
		if !known {
			rule = genericComplementRule(el.Tag)
			p.log.Debug("Unregistered complement, extracting generically", zap.String("tag", el.Tag))
		}

		eachAttr(el, func(name, value string) {
			p.out.setField(rule.fieldKey(name), value)
		})

		switch el.Tag {
		case "TimbreFiscalDigital":
			if v, ok := p.out.Fields["TimbreUUID"].(string); ok {
				if _, err := uuid.Parse(v); err != nil {
					p.log.Warn("Tax stamp carries invalid UUID", zap.String("uuid", v), zap.Error(err))
				}
			}
		case "Pagos":
			p.extractPagosDetail(el)
		}
	}
}

// extractPagosDetail extracts the Pagos 2.0 payment receipt details: Totales
// attributes and the individual Pago records with their related documents.
func (p *parser) extractPagosDetail(pagos *etree.Element) {
	if totales := p.child(pagos, "pago20", "Totales"); totales != nil {
		eachAttr(totales, func(name, value string) {
			p.out.setField("PagosTotales"+name, value)
		})
	}

	var detalle []Pago
	for _, el := range p.children(pagos, "pago20", "Pago") {
		pago := Pago{Fields: attrMap(el)}
		for _, docto := range p.children(el, "pago20", "DoctoRelacionado") {
			pago.DocumentosRelacionados = append(pago.DocumentosRelacionados, attrMap(docto))
		}
		detalle = append(detalle, pago)
	}
	if len(detalle) > 0 {
		p.out.setField("PagosDetalle", detalle)
	}
}

// extractRelacionados collects the relation type and UUIDs of related CFDIs.
// UUIDs are kept verbatim, an invalid one is only worth a warning.
func (p *parser) extractRelacionados(root *etree.Element) {
	relacionados := p.child(root, "cfdi", "CfdiRelacionados")
	if relacionados == nil {
		return
	}

	if tipo := relacionados.SelectAttrValue("TipoRelacion", ""); tipo != "" {
		p.out.setField("TipoRelacion", tipo)
	}

	for _, el := range p.children(relacionados, "cfdi", "CfdiRelacionado") {
		id := el.SelectAttrValue("UUID", "")
		if id == "" {
			continue
		}
		if _, err := uuid.Parse(id); err != nil {
			p.log.Warn("Related CFDI carries invalid UUID", zap.String("uuid", id), zap.Error(err))
		}
		p.out.Relacionados = append(p.out.Relacionados, id)
	}

	// comma-joined copy for backward compatibility with flat consumers
	if len(p.out.Relacionados) > 0 {
		p.out.setField("UUIDCfdiRelacionado", strings.Join(p.out.Relacionados, ", "))
	}
}

// extractAddenda records presence of the free-form Addenda block and extracts
// attributes from its immediate children best-effort. Internal structure is
// issuer defined and not standardized.
func (p *parser) extractAddenda(root *etree.Element) {
	addenda := p.child(root, "cfdi", "Addenda")
	if addenda == nil {
		return
	}

	p.out.setField("TieneAddenda", "Sí")

	for _, el := range addenda.ChildElements() {
		name := cleanKey(el.Tag)
		eachAttr(el, func(attr, value string) {
			p.out.setField(addendaRule.fieldKey(name+attr), value)
		})
	}
}
