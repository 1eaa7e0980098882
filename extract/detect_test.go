package extract

import (
	"archive/zip"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
)

// TestIsArchiveFile tests archive file detection
func TestIsArchiveFile(t *testing.T) {
	tmpDir := t.TempDir()

	t.Run("non-zip extension", func(t *testing.T) {
		filePath := filepath.Join(tmpDir, "test.txt")
		if err := os.WriteFile(filePath, []byte("not a zip"), 0644); err != nil {
			t.Fatalf("Failed to create test file: %v", err)
		}
		got, err := isArchiveFile(filePath)
		if err != nil {
			t.Errorf("isArchiveFile() error = %v", err)
		}
		if got != false {
			t.Errorf("isArchiveFile() = %v, want false", got)
		}
	})

	t.Run("zip extension but invalid content", func(t *testing.T) {
		filePath := filepath.Join(tmpDir, "test.zip")
		if err := os.WriteFile(filePath, []byte("not a real zip file"), 0644); err != nil {
			t.Fatalf("Failed to create test file: %v", err)
		}
		got, err := isArchiveFile(filePath)
		if err != nil {
			t.Errorf("isArchiveFile() error = %v", err)
		}
		if got != false {
			t.Errorf("isArchiveFile() = %v, want false", got)
		}
	})

	t.Run("valid zip file", func(t *testing.T) {
		filePath := filepath.Join(tmpDir, "test2.zip")
		zipFile, err := os.Create(filePath)
		if err != nil {
			t.Fatalf("Failed to create zip file: %v", err)
		}
		w := zip.NewWriter(zipFile)
		f, err := w.Create("factura.xml")
		if err != nil {
			t.Fatalf("Failed to create file in zip: %v", err)
		}
		f.Write(make([]byte, 300))
		w.Close()
		zipFile.Close()

		got, err := isArchiveFile(filePath)
		if err != nil {
			t.Errorf("isArchiveFile() error = %v", err)
		}
		if !got {
			t.Errorf("isArchiveFile() = false, want true")
		}
	})
}

// TestIsArchiveFile_NonExistent tests with non-existent file
func TestIsArchiveFile_NonExistent(t *testing.T) {
	_, err := isArchiveFile("/nonexistent/file.zip")
	if err == nil {
		t.Error("Expected error for non-existent file, got nil")
	}
}

// TestDetectUTF tests UTF encoding detection
func TestDetectUTF(t *testing.T) {
	tests := []struct {
		name string
		buf  []byte
		want srcEncoding
	}{
		{
			name: "UTF-8 BOM",
			buf:  []byte{0xEF, 0xBB, 0xBF, 0x00},
			want: encUTF8,
		},
		{
			name: "UTF-16 Big Endian BOM",
			buf:  []byte{0xFE, 0xFF, 0x00, 0x00},
			want: encUTF16BigEndian,
		},
		{
			name: "UTF-16 Little Endian BOM",
			buf:  []byte{0xFF, 0xFE, 0x01, 0x00}, // Different from UTF-32LE
			want: encUTF16LittleEndian,
		},
		{
			name: "UTF-32 Big Endian BOM",
			buf:  []byte{0x00, 0x00, 0xFE, 0xFF},
			want: encUTF32BigEndian,
		},
		{
			name: "UTF-32 Little Endian BOM",
			buf:  []byte{0xFF, 0xFE, 0x00, 0x00},
			want: encUTF32LittleEndian,
		},
		{
			name: "No BOM",
			buf:  []byte{0x00, 0x01, 0x02, 0x03},
			want: encUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := detectUTF(tt.buf)
			if got != tt.want {
				t.Errorf("detectUTF() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestIsInvoiceFile tests CFDI file detection
func TestIsInvoiceFile(t *testing.T) {
	tmpDir := t.TempDir()

	cfdiContent := []byte(`<?xml version="1.0" encoding="UTF-8"?>
<cfdi:Comprobante xmlns:cfdi="http://www.sat.gob.mx/cfd/4" Version="4.0" Total="100.0">
<cfdi:Emisor Rfc="AAA010101AAA"/>
</cfdi:Comprobante>`)

	tests := []struct {
		name        string
		filename    string
		content     []byte
		wantInvoice bool
		wantEnc     srcEncoding
		wantErr     bool
	}{
		{
			name:        "valid xml file",
			filename:    "factura.xml",
			content:     cfdiContent,
			wantInvoice: true,
			wantEnc:     encUnknown,
			wantErr:     false,
		},
		{
			name:        "xml with UTF-8 BOM",
			filename:    "factura-utf8.xml",
			content:     append([]byte{0xEF, 0xBB, 0xBF}, cfdiContent...),
			wantInvoice: true,
			wantEnc:     encUTF8,
			wantErr:     false,
		},
		{
			name:        "non-xml extension",
			filename:    "factura.txt",
			content:     cfdiContent,
			wantInvoice: false,
			wantEnc:     encUnknown,
			wantErr:     false,
		},
		{
			name:        "xml extension but not xml content",
			filename:    "broken.xml",
			content:     []byte("this is not an xml document"),
			wantInvoice: false,
			wantEnc:     encUnknown,
			wantErr:     false,
		},
		{
			name:        "uppercase extension",
			filename:    "factura.XML",
			content:     cfdiContent,
			wantInvoice: true,
			wantEnc:     encUnknown,
			wantErr:     false,
		},
		{
			name:        "leading whitespace",
			filename:    "padded.xml",
			content:     append([]byte("\r\n\t "), cfdiContent...),
			wantInvoice: true,
			wantEnc:     encUnknown,
			wantErr:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			filePath := filepath.Join(tmpDir, tt.filename)
			if err := os.WriteFile(filePath, tt.content, 0644); err != nil {
				t.Fatalf("Failed to create test file: %v", err)
			}

			gotInvoice, gotEnc, err := isInvoiceFile(filePath)
			if (err != nil) != tt.wantErr {
				t.Errorf("isInvoiceFile() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if gotInvoice != tt.wantInvoice {
				t.Errorf("isInvoiceFile() invoice = %v, want %v", gotInvoice, tt.wantInvoice)
			}
			if gotEnc != tt.wantEnc {
				t.Errorf("isInvoiceFile() encoding = %v, want %v", gotEnc, tt.wantEnc)
			}
		})
	}
}

// TestIsInvoiceFile_NonExistent tests with non-existent file
func TestIsInvoiceFile_NonExistent(t *testing.T) {
	_, _, err := isInvoiceFile("/nonexistent/file.xml")
	if err == nil {
		t.Error("Expected error for non-existent file, got nil")
	}
}

// TestIsInvoiceInArchive tests CFDI detection in archive
func TestIsInvoiceInArchive(t *testing.T) {
	tmpDir := t.TempDir()
	zipPath := filepath.Join(tmpDir, "test.zip")

	cfdiContent := []byte(`<?xml version="1.0" encoding="UTF-8"?>
<cfdi:Comprobante xmlns:cfdi="http://www.sat.gob.mx/cfd/4" Version="4.0" Total="100.0">
<cfdi:Emisor Rfc="AAA010101AAA"/>
</cfdi:Comprobante>`)

	zipFile, err := os.Create(zipPath)
	if err != nil {
		t.Fatalf("Failed to create zip file: %v", err)
	}

	w := zip.NewWriter(zipFile)

	f1, err := w.CreateHeader(&zip.FileHeader{Name: "factura.xml", Method: zip.Store})
	if err != nil {
		t.Fatalf("Failed to create file in zip: %v", err)
	}
	if _, err := f1.Write(cfdiContent); err != nil {
		t.Fatalf("Failed to write to zip: %v", err)
	}

	f2, err := w.CreateHeader(&zip.FileHeader{Name: "readme.txt", Method: zip.Store})
	if err != nil {
		t.Fatalf("Failed to create txt file in zip: %v", err)
	}
	if _, err := f2.Write([]byte("not an invoice")); err != nil {
		t.Fatalf("Failed to write txt to zip: %v", err)
	}

	f3, err := w.CreateHeader(&zip.FileHeader{Name: "factura-bom.xml", Method: zip.Store})
	if err != nil {
		t.Fatalf("Failed to create BOM file in zip: %v", err)
	}
	if _, err := f3.Write(append([]byte{0xEF, 0xBB, 0xBF}, cfdiContent...)); err != nil {
		t.Fatalf("Failed to write BOM file to zip: %v", err)
	}

	w.Close()
	zipFile.Close()

	r, err := zip.OpenReader(zipPath)
	if err != nil {
		t.Fatalf("Failed to open zip: %v", err)
	}
	defer r.Close()

	tests := []struct {
		name        string
		fileIdx     int
		wantInvoice bool
		wantEnc     srcEncoding
	}{
		{
			name:        "xml file in archive",
			fileIdx:     0,
			wantInvoice: true,
			wantEnc:     encUnknown,
		},
		{
			name:        "non-xml file in archive",
			fileIdx:     1,
			wantInvoice: false,
			wantEnc:     encUnknown,
		},
		{
			name:        "xml with BOM in archive",
			fileIdx:     2,
			wantInvoice: true,
			wantEnc:     encUTF8,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotInvoice, gotEnc, err := isInvoiceInArchive(r.File[tt.fileIdx])
			if err != nil {
				t.Errorf("isInvoiceInArchive() error = %v", err)
				return
			}
			if gotInvoice != tt.wantInvoice {
				t.Errorf("isInvoiceInArchive() invoice = %v, want %v", gotInvoice, tt.wantInvoice)
			}
			if gotEnc != tt.wantEnc {
				t.Errorf("isInvoiceInArchive() encoding = %v, want %v", gotEnc, tt.wantEnc)
			}
		})
	}
}

// TestSelectReader tests reader selection for different encodings
func TestSelectReader(t *testing.T) {
	tests := []srcEncoding{
		encUnknown,
		encUTF8,
		encUTF16BigEndian,
		encUTF16LittleEndian,
		encUTF32BigEndian,
		encUTF32LittleEndian,
	}

	for i, enc := range tests {
		t.Run(string(rune('0'+i)), func(t *testing.T) {
			result := selectReader(bytes.NewReader([]byte("test data")), enc)
			if result == nil {
				t.Error("selectReader() returned nil")
			}
		})
	}
}

// TestSelectReaderStripsBOM verifies the decoded stream starts with content
func TestSelectReaderStripsBOM(t *testing.T) {
	raw := append([]byte{0xEF, 0xBB, 0xBF}, []byte("<cfdi:Comprobante/>")...)

	data, err := io.ReadAll(selectReader(bytes.NewReader(raw), detectUTF(raw)))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "<cfdi:Comprobante/>" {
		t.Fatalf("BOM not stripped: %q", data)
	}
}
