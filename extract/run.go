// Package extract implements the extract subcommand: discover CFDI documents
// in files, directories or zip archives, run batched extraction and write the
// columnar result in the requested tabular format.
package extract

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/maruel/natural"
	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/ianaindex"

	"cfx/archive"
	"cfx/batch"
	"cfx/cfdi"
	"cfx/common"
	"cfx/export"
	"cfx/state"
)

func Run(ctx context.Context, cmd *cli.Command) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	env := state.EnvFromContext(ctx)
	log := env.Log.Named("extract")

	src := cmd.Args().Get(0)
	if len(src) == 0 {
		return errors.New("no input source has been specified")
	}
	src, err = filepath.Abs(src)
	if err != nil {
		return err
	}

	dst := cmd.Args().Get(1)
	if len(dst) == 0 {
		if dst, err = os.Getwd(); err != nil {
			return fmt.Errorf("unable to get working directory: %w", err)
		}
	}
	if dst, err = filepath.Abs(dst); err != nil {
		return err
	}
	if cmd.Args().Len() > 2 {
		log.Warn("Malformed command line, too many destinations", zap.Strings("ignoring", cmd.Args().Slice()[2:]))
	}

	format, err := common.ParseOutputFmt(cmd.String("to"))
	if err != nil {
		log.Warn("Unknown output format requested, switching to csv", zap.Error(err))
		format = common.OutputFmtCSV
	}

	env.Overwrite = cmd.Bool("overwrite")

	if rfc := cmd.String("rfc"); len(rfc) > 0 {
		if env.FilterRFC, err = common.NormalizeRFC(rfc); err != nil {
			return fmt.Errorf("bad --rfc value: %w", err)
		}
	}

	// Since zip "standard" does not define file name encoding we may need to
	// force archaic code page for old archives
	cp := cmd.String("force-zip-cp")
	if len(cp) > 0 {
		env.CodePage, err = ianaindex.IANA.Encoding(cp)
		if err != nil {
			log.Warn("Unknown character set specification. Ignoring...", zap.String("charset", cp), zap.Error(err))
			env.CodePage = nil
		} else {
			n, _ := ianaindex.IANA.Name(env.CodePage)
			log.Debug("Forcefully converting all non UTF-8 file names in archives", zap.String("charset", n))
		}
	}

	log.Info("Processing starting", zap.String("source", src), zap.String("destination", dst), zap.Stringer("format", format))
	defer func(start time.Time) {
		log.Info("Processing completed", zap.Duration("elapsed", time.Since(start)))
	}(time.Now())

	return process(ctx, src, dst, format, log)
}

// process handles the core extraction logic independently of CLI framework.
// It determines the input type (directory, archive, or single file), collects
// document sources, reduces them and writes the result.
func process(ctx context.Context, src, dst string, format common.OutputFmt, log *zap.Logger) error {
	var sources []batch.Source

	var head, tail string
	for head = src; len(head) != 0; head, tail = filepath.Split(head) {
		if err := ctx.Err(); err != nil {
			return err
		}

		head = strings.TrimSuffix(head, string(filepath.Separator))

		fi, err := os.Stat(head)
		if err != nil {
			// does not exists - probably path in archive
			continue
		}

		if fi.Mode().IsDir() {
			if len(tail) != 0 {
				// directory cannot have tail - it would be simple file
				return fmt.Errorf("input source was not found (%s) => (%s)", head, strings.TrimPrefix(src, head))
			}
			if sources, err = collectDir(ctx, head, log); err != nil {
				return fmt.Errorf("unable to process directory: %w", err)
			}
			break
		}

		if !fi.Mode().IsRegular() {
			return fmt.Errorf("unexpected path mode for (%s) => (%s)", head, strings.TrimPrefix(src, head))
		}

		isArchive, err := isArchiveFile(head)
		if err != nil {
			// checking format - but cannot open target file
			return fmt.Errorf("unable to check archive type: %w", err)
		}
		if isArchive {
			// we need to look inside to see if path makes sense
			tail = strings.TrimPrefix(strings.TrimPrefix(src, head), string(filepath.Separator))
			if sources, err = collectArchive(ctx, head, tail, log); err != nil {
				return fmt.Errorf("unable to process archive: %w", err)
			}
			break
		}

		invoice, enc, err := isInvoiceFile(head)
		if err != nil {
			return fmt.Errorf("unable to check file type: %w", err)
		}
		if invoice && len(tail) == 0 {
			s, err := readSource(head, filepath.Base(head), enc)
			if err != nil {
				return fmt.Errorf("unable to read file: %w", err)
			}
			sources = append(sources, s)
			break
		}
		return fmt.Errorf("input was not recognized as CFDI document (%s)", head)
	}
	if len(head) == 0 {
		return fmt.Errorf("input source was not found (%s)", src)
	}

	if len(sources) == 0 {
		log.Warn("Nothing to process", zap.String("source", src))
		return nil
	}

	// deterministic, human expected ordering independent of walk order
	sort.Slice(sources, func(i, j int) bool {
		return natural.Less(sources[i].Name, sources[j].Name)
	})

	return reduceAndWrite(ctx, sources, head, dst, format, log)
}

// collectDir walks the directory tree gathering CFDI documents, descending
// into zip archives it meets on the way.
func collectDir(ctx context.Context, dir string, log *zap.Logger) ([]batch.Source, error) {
	var sources []batch.Source

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err != nil {
			log.Warn("Skipping path", zap.String("path", path), zap.Error(err))
			return nil
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		isArchive, err := isArchiveFile(path)
		if err != nil {
			log.Warn("Skipping file", zap.String("file", path), zap.Error(err))
			return nil
		}
		if isArchive {
			inner, err := collectArchive(ctx, path, "", log)
			if err != nil {
				log.Error("Unable to process archive", zap.String("file", path), zap.Error(err))
				return nil
			}
			sources = append(sources, inner...)
			return nil
		}

		invoice, enc, err := isInvoiceFile(path)
		if err != nil {
			log.Warn("Skipping file", zap.String("file", path), zap.Error(err))
			return nil
		}
		if !invoice {
			log.Debug("Skipping file, not recognized as CFDI document or archive", zap.String("file", path))
			return nil
		}

		name := strings.TrimPrefix(strings.TrimPrefix(path, dir), string(filepath.Separator))
		s, err := readSource(path, name, enc)
		if err != nil {
			log.Error("Unable to read file", zap.String("file", path), zap.Error(err))
			return nil
		}
		sources = append(sources, s)
		return nil
	})
	return sources, err
}

// collectArchive gathers CFDI documents stored inside a zip archive under
// pathIn.
func collectArchive(ctx context.Context, path, pathIn string, log *zap.Logger) ([]batch.Source, error) {
	var sources []batch.Source

	err := archive.Walk(path, pathIn, func(arc string, f *zip.File) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		invoice, enc, err := isInvoiceInArchive(f)
		if err != nil {
			log.Warn("Skipping file in archive",
				zap.String("archive", arc), zap.String("path", f.FileHeader.Name), zap.Error(err))
			return nil
		}
		if !invoice {
			log.Debug("Skipping file, not recognized as CFDI document", zap.String("archive", arc), zap.String("file", f.FileHeader.Name))
			return nil
		}

		r, err := f.Open()
		if err != nil {
			log.Error("Unable to read file in archive",
				zap.String("archive", arc), zap.String("file", f.FileHeader.Name), zap.Error(err))
			return nil
		}
		defer r.Close()

		cp := state.EnvFromContext(ctx).CodePage

		name := f.FileHeader.Name
		if cp != nil && f.FileHeader.NonUTF8 {
			// forcing zip file name encoding
			if n, err := cp.NewDecoder().String(name); err == nil {
				name = n
			} else {
				n, _ = ianaindex.IANA.Name(cp)
				log.Warn("Unable to convert archive name from specified encoding",
					zap.String("charset", n), zap.String("path", name), zap.Error(err))
			}
		}

		data, err := io.ReadAll(selectReader(r, enc))
		if err != nil {
			log.Error("Unable to read file in archive",
				zap.String("archive", arc), zap.String("file", f.FileHeader.Name), zap.Error(err))
			return nil
		}
		sources = append(sources, batch.Source{Name: filepath.Base(arc) + "/" + name, Data: data})
		return nil
	})
	return sources, err
}

func readSource(path, name string, enc srcEncoding) (batch.Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return batch.Source{}, err
	}
	defer f.Close()

	data, err := io.ReadAll(selectReader(f, enc))
	if err != nil {
		return batch.Source{}, err
	}
	return batch.Source{Name: name, Data: data}, nil
}

// reduceAndWrite runs batched extraction over collected sources and writes
// the result. "head" is the resolved source root used to derive output names.
func reduceAndWrite(ctx context.Context, sources []batch.Source, head, dst string, format common.OutputFmt, log *zap.Logger) error {
	env := state.EnvFromContext(ctx)
	doc := &env.Cfg.Document

	opts := batch.Options{
		Workers: doc.Workers,
		Parse: cfdi.Options{
			Namespaces:       doc.Namespaces,
			ConceptSeparator: doc.ConceptSeparator,
			AggregateFields:  doc.AggregateFields,
		},
		Types: &cfdi.FieldTypes{
			Float:        doc.FieldTypes.Float,
			Int:          doc.FieldTypes.Int,
			ConceptFloat: doc.FieldTypes.ConceptFloat,
			TaxFloat:     doc.FieldTypes.TaxFloat,
		},
		CopyToConceptos: doc.CopyToConceptos,
	}

	columnar := batch.Reduce(ctx, sources, opts, log)

	if env.Rpt != nil {
		for i, d := range columnar.Documents {
			env.Rpt.StoreData(fmt.Sprintf("extracted/%03d-%s.txt", i, export.BaseName(sources[i].Name)), []byte(d.String()))
		}
	}

	if len(env.FilterRFC) > 0 {
		before := len(columnar.Documents)
		columnar = columnar.FilterDocuments(func(d *cfdi.Document) bool {
			return d.EmisorRFC() == env.FilterRFC || d.ReceptorRFC() == env.FilterRFC
		})
		log.Info("Filtered documents by RFC", zap.String("rfc", env.FilterRFC),
			zap.Int("kept", len(columnar.Documents)), zap.Int("dropped", before-len(columnar.Documents)))
	}

	base := export.BaseName(strings.TrimSuffix(filepath.Base(head), filepath.Ext(head)))

	if !env.Overwrite {
		for _, path := range export.TargetPaths(dst, base, format) {
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("output file already exists, use --ow to overwrite (%s)", path)
			}
		}
	}

	if err := os.MkdirAll(dst, 0755); err != nil {
		return fmt.Errorf("unable to create output directory: %w", err)
	}

	files, err := export.Write(columnar, dst, base, format, log)
	if err != nil {
		return fmt.Errorf("unable to write output: %w", err)
	}
	for _, file := range files {
		log.Info("Output written", zap.String("file", file))
	}

	return columnar.Err()
}
