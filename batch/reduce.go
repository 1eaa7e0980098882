// Package batch extracts many CFDI documents and aligns their fields into a
// columnar result with a stable, sorted column universe.
package batch

import (
	"bytes"
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"cfx/cfdi"
)

// Source is one document to process, already read from wherever it lives. The
// reducer never touches a filesystem.
type Source struct {
	Name string
	Data []byte
}

// DocumentError wraps any failure during a specific document's extraction. It
// is recorded per slot and never aborts the batch.
type DocumentError struct {
	Source string
	Err    error
}

func (e *DocumentError) Error() string {
	return fmt.Sprintf("extracting %s: %v", e.Source, e.Err)
}

func (e *DocumentError) Unwrap() error {
	return e.Err
}

// Options control batched extraction.
type Options struct {
	// Workers caps parallel extractions, 0 means GOMAXPROCS.
	Workers int

	Parse cfdi.Options
	Types *cfdi.FieldTypes

	// CopyToConceptos lists document level fields copied into every concept
	// record of that document for downstream join convenience.
	CopyToConceptos []string
}

// Columnar is the positionally aligned view over a batch. Every Fields column
// has one entry per input document, every Conceptos column one entry per line
// item across all documents in document order. Missing values are nil.
type Columnar struct {
	Fields    map[string][]any
	Conceptos map[string][]any

	// Documents preserves per-document results, index aligned with the input.
	// A failed document holds an empty placeholder so alignment never breaks.
	Documents []*cfdi.Document

	// Failed flags the slots holding failure placeholders, index aligned with
	// Documents. A parsed document with no attributes is a valid empty slot,
	// not a failed one.
	Failed []bool

	// Failures lists documents that could not be extracted.
	Failures []*DocumentError
}

// FieldNames returns the sorted union of root field names across the batch.
func (c *Columnar) FieldNames() []string {
	return sortedKeys(c.Fields)
}

// ConceptoNames returns the sorted union of concept field names across the
// batch.
func (c *Columnar) ConceptoNames() []string {
	return sortedKeys(c.Conceptos)
}

// Err combines all per-document failures into one error, nil when the whole
// batch extracted cleanly.
func (c *Columnar) Err() error {
	var err error
	for _, f := range c.Failures {
		err = multierr.Append(err, f)
	}
	return err
}

// Reduce extracts every source independently and builds the columnar view.
// Failures are isolated to their own slot, a malformed document never stalls
// or corrupts processing of the rest of the batch.
func Reduce(ctx context.Context, sources []Source, opts Options, log *zap.Logger) *Columnar {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > len(sources) {
		workers = len(sources)
	}

	docs := make([]*cfdi.Document, len(sources))
	errs := make([]*DocumentError, len(sources))

	// fan out per document, results land at their input index so completion
	// order never matters
	indexes := make(chan int)
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexes {
				docs[i], errs[i] = extractOne(ctx, sources[i], opts, log)
			}
		}()
	}
	for i := range sources {
		indexes <- i
	}
	close(indexes)
	wg.Wait()

	var failures []*DocumentError
	failed := make([]bool, len(sources))
	for i, e := range errs {
		if e != nil {
			failed[i] = true
			failures = append(failures, e)
		}
	}

	c := buildColumnar(docs, failed, failures)
	log.Info("Batch reduced",
		zap.Int("documents", len(sources)), zap.Int("failed", len(failures)),
		zap.Int("fields", len(c.Fields)), zap.Int("concept_fields", len(c.Conceptos)))
	return c
}

// extractOne isolates a single document: parse, coerce, inject correlating
// fields into concept records. On any failure an empty placeholder keeps the
// batch aligned.
func extractOne(ctx context.Context, src Source, opts Options, log *zap.Logger) (*cfdi.Document, *DocumentError) {
	fail := func(err error) (*cfdi.Document, *DocumentError) {
		log.Error("Unable to extract document", zap.String("source", src.Name), zap.Error(err))
		return &cfdi.Document{Fields: map[string]any{}}, &DocumentError{Source: src.Name, Err: err}
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	doc, err := cfdi.ReadInvoice(bytes.NewReader(src.Data), opts.Parse, log)
	if err != nil {
		return fail(err)
	}

	if opts.Types != nil {
		opts.Types.Coerce(doc)
	}

	for _, field := range opts.CopyToConceptos {
		v, ok := doc.Fields[field]
		if !ok {
			log.Debug("Correlating field missing from document", zap.String("source", src.Name), zap.String("field", field))
			continue
		}
		for _, c := range doc.Conceptos {
			c.Fields[field] = v
		}
	}

	return doc, nil
}

// buildColumnar computes the sorted union of field names and aligns values
// positionally, nil marking absence.
func buildColumnar(docs []*cfdi.Document, failed []bool, failures []*DocumentError) *Columnar {
	fieldKeys := make(map[string]struct{})
	conceptoKeys := make(map[string]struct{})
	for _, d := range docs {
		for k := range d.Fields {
			fieldKeys[k] = struct{}{}
		}
		for _, c := range d.Conceptos {
			for k := range c.Fields {
				conceptoKeys[k] = struct{}{}
			}
		}
	}

	out := &Columnar{
		Fields:    make(map[string][]any, len(fieldKeys)),
		Conceptos: make(map[string][]any, len(conceptoKeys)),
		Documents: docs,
		Failed:    failed,
		Failures:  failures,
	}

	for k := range fieldKeys {
		column := make([]any, len(docs))
		for i, d := range docs {
			if v, ok := d.Fields[k]; ok {
				column[i] = v
			}
		}
		out.Fields[k] = column
	}

	for k := range conceptoKeys {
		var column []any
		for _, d := range docs {
			for _, c := range d.Conceptos {
				if v, ok := c.Fields[k]; ok {
					column = append(column, v)
				} else {
					column = append(column, nil)
				}
			}
		}
		out.Conceptos[k] = column
	}

	return out
}

// FilterDocuments rebuilds the columnar view over the documents the keep
// function accepts. Failure placeholders are always dropped; the filtered
// view therefore has no failed slots, only the Failures list for reporting.
func (c *Columnar) FilterDocuments(keep func(*cfdi.Document) bool) *Columnar {
	var docs []*cfdi.Document
	for i, d := range c.Documents {
		if i < len(c.Failed) && c.Failed[i] {
			continue
		}
		if keep(d) {
			docs = append(docs, d)
		}
	}
	return buildColumnar(docs, make([]bool, len(docs)), c.Failures)
}

func sortedKeys(m map[string][]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
