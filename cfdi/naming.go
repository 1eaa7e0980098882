package cfdi

import (
	"strconv"
	"strings"
)

// Field naming is centralized here so the contract (namespace stripping, per
// section prefixes, Version disambiguation, skip policy, collision indexing)
// stays testable apart from tree walking.

// sectionRule describes how attribute names of one structural section map to
// root keys: local attribute name -> prefix + name, with an overloaded
// "Version" attribute renamed to versionKey before the prefix is applied so
// sections never collide on it.
// When trimOwn is set the section name is removed from attribute names that
// repeat it (RegimenFiscalReceptor under Receptor and the like) before the
// prefix is applied.
type sectionRule struct {
	prefix     string
	versionKey string
	trimOwn    bool
}

var (
	rootRule      = sectionRule{versionKey: "VersionCFDI"}
	emisorRule    = sectionRule{prefix: "Emisor", trimOwn: true}
	receptorRule  = sectionRule{prefix: "Receptor", trimOwn: true}
	impuestosRule = sectionRule{prefix: "Impuestos"}
	addendaRule   = sectionRule{prefix: "Addenda"}
)

// knownComplements registers supplement blocks with dedicated naming. Any
// complement child not listed here falls back to its own cleaned tag as
// prefix which keeps unknown supplement schemas extractable.
var knownComplements = map[string]sectionRule{
	"TimbreFiscalDigital": {prefix: "Timbre", versionKey: "VersionTimbre"},
	"Pagos":               {prefix: "Pagos", versionKey: "VersionPagos"},
	"Nomina":              {prefix: "Nomina", versionKey: "VersionNomina"},
	"CartaPorte":          {prefix: "CartaPorte", versionKey: "VersionCartaPorte"},
}

// genericComplementRule builds the naming rule for an unregistered complement
// block from its cleaned tag name.
func genericComplementRule(tag string) sectionRule {
	return sectionRule{prefix: cleanKey(tag)}
}

// cleanKey strips the namespace portion from an attribute or tag name keeping
// only the local name. Understands both the "{uri}name" form and the
// "prefix:name" form, repeated application is a no-op.
func cleanKey(key string) string {
	if i := strings.LastIndex(key, "}"); i >= 0 {
		return key[i+1:]
	}
	if i := strings.LastIndex(key, ":"); i >= 0 {
		return key[i+1:]
	}
	return key
}

// skipTerms marks cryptographic and schema metadata attributes with no
// analytical value and unbounded binary content.
var skipTerms = []string{"sello", "certificado", "http:", "xsi:", "schemalocation"}

// shouldSkip reports whether the attribute must be dropped entirely,
// case-insensitively.
func shouldSkip(key string) bool {
	lower := strings.ToLower(key)
	for _, term := range skipTerms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}

// fieldKey maps a cleaned attribute name to its root mapping key under the
// given section rule.
func (r sectionRule) fieldKey(name string) string {
	if r.versionKey != "" && strings.EqualFold(name, "version") {
		return r.prefix + r.versionKey
	}
	if r.trimOwn && r.prefix != "" {
		name = strings.ReplaceAll(name, r.prefix, "")
	}
	return r.prefix + name
}

// indexedKey disambiguates repeated keys from repeating sibling elements. The
// first occurrence keeps the bare name, later ones get _1, _2, ...
func indexedKey(base string, idx int) string {
	if idx == 0 {
		return base
	}
	return base + "_" + strconv.Itoa(idx)
}
