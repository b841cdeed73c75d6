package docs

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// pageReader opens a paged document; it lets tests stub MuPDF.
type pageReader interface {
	Open(path string) (pageSource, error)
}

type pageSource interface {
	NumPage() int
	Text(page int) (string, error)
	Close() error
}

type fitzReader struct{}

func (fitzReader) Open(path string) (pageSource, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, err
	}
	return fitzDoc{doc: doc}, nil
}

type fitzDoc struct {
	doc *fitz.Document
}

func (d fitzDoc) NumPage() int                  { return d.doc.NumPage() }
func (d fitzDoc) Text(page int) (string, error) { return d.doc.Text(page) }
func (d fitzDoc) Close() error {
	d.doc.Close()
	return nil
}

// inspectPDF parses the cross-reference structure with pdfcpu and returns the
// page count it declares.
func inspectPDF(path string) (pages int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdfcpu panic: %v", r)
		}
	}()

	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	conf := model.NewDefaultConfiguration()
	pdfCtx, err := api.ReadValidateAndOptimize(f, conf)
	if err != nil {
		return 0, err
	}
	return pdfCtx.PageCount, nil
}

func (e *Extractor) extractPDF(ctx context.Context, path string) (Result, error) {
	res := Result{Method: "pdf-text"}

	declared, err := inspectPDF(path)
	if err != nil {
		// MuPDF repairs many files pdfcpu rejects; only MuPDF failing is fatal.
		res.Warnings = append(res.Warnings, fmt.Sprintf("pdfcpu: %v", err))
		e.logger.Warn("pdf structure check failed", "path", path, "error", err)
	}

	doc, err := e.pdf.Open(path)
	if err != nil {
		return res, fmt.Errorf("%w: open pdf: %v", ErrDecode, err)
	}
	defer doc.Close()

	n := doc.NumPage()
	if declared > 0 && declared != n {
		res.Warnings = append(res.Warnings, fmt.Sprintf("page count mismatch: pdfcpu=%d mupdf=%d", declared, n))
	}
	if e.cfg.MaxPages > 0 && n > e.cfg.MaxPages {
		res.Warnings = append(res.Warnings, fmt.Sprintf("truncated to %d of %d pages", e.cfg.MaxPages, n))
		n = e.cfg.MaxPages
	}

	pages := make([]string, 0, n)
	for i := 0; i < n; i++ {
		select {
		case <-ctx.Done():
			return res, ctx.Err()
		default:
		}
		txt, err := doc.Text(i)
		if err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("page %d: %v", i+1, err))
			continue
		}
		pages = append(pages, txt)
	}
	if n > 0 && len(pages) == 0 {
		return res, fmt.Errorf("%w: no readable pages", ErrDecode)
	}

	res.Pages = n
	res.Text = strings.Join(pages, "\n")
	return res, nil
}
