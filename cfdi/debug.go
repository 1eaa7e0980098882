package cfdi

import (
	"maps"
	"slices"
	"sort"

	"github.com/maruel/natural"

	"cfx/utils/debug"
)

// String returns a readable tree of the whole extracted Document.
// It exists solely for manual inspection during debugging.
func (d *Document) String() string {
	if d == nil {
		return "<nil Document>"
	}

	tw := debug.NewTreeWriter()

	tw.Line(0, "Fields: %d", len(d.Fields))
	keys := slices.Collect(maps.Keys(d.Fields))
	sort.Sort(natural.StringSlice(keys))
	for _, k := range keys {
		tw.Line(1, "%s = %v", k, d.Fields[k])
	}

	if len(d.Conceptos) > 0 {
		tw.Line(0, "Conceptos: %d", len(d.Conceptos))
		for i, c := range d.Conceptos {
			tw.Line(1, "Concepto[%d]", i)
			keys := slices.Collect(maps.Keys(c.Fields))
			sort.Sort(natural.StringSlice(keys))
			for _, k := range keys {
				tw.Line(2, "%s = %v", k, c.Fields[k])
			}
			dumpTaxRows(tw, "Traslado", c.Impuestos.Traslados)
			dumpTaxRows(tw, "Retencion", c.Impuestos.Retenciones)
		}
	}

	if len(d.Relacionados) > 0 {
		tw.Line(0, "Relacionados: %d", len(d.Relacionados))
		for i, id := range d.Relacionados {
			tw.Line(1, "UUID[%d] = %s", i, id)
		}
	}

	if len(d.Collisions) > 0 {
		tw.Line(0, "Collisions: %d", len(d.Collisions))
		for _, c := range d.Collisions {
			tw.Line(1, "Key=%q was %v now %v", c.Key, c.Previous, c.Value)
		}
	}

	return tw.String()
}

func dumpTaxRows(tw *debug.TreeWriter, kind string, rows []TaxRow) {
	for i, row := range rows {
		tw.Line(2, "%s[%d]", kind, i)
		keys := slices.Collect(maps.Keys(row))
		sort.Sort(natural.StringSlice(keys))
		for _, k := range keys {
			tw.Line(3, "%s = %v", k, row[k])
		}
	}
}
