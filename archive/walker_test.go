package archive

import (
	"archive/zip"
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func createTestArchive(t *testing.T, files map[string]string) string {
	t.Helper()

	zipPath := filepath.Join(t.TempDir(), "facturas.zip")
	zipFile, err := os.Create(zipPath)
	if err != nil {
		t.Fatalf("Failed to create zip file: %v", err)
	}

	w := zip.NewWriter(zipFile)
	for name, content := range files {
		fw, err := w.Create(name)
		if err != nil {
			t.Fatalf("Failed to create file %s in zip: %v", name, err)
		}
		if _, err := fw.Write([]byte(content)); err != nil {
			t.Fatalf("Failed to write content for %s: %v", name, err)
		}
	}
	w.Close()
	zipFile.Close()
	return zipPath
}

func TestWalk(t *testing.T) {
	zipPath := createTestArchive(t, map[string]string{
		"2024/enero/f001.xml":   "<cfdi:Comprobante/>",
		"2024/enero/f002.xml":   "<cfdi:Comprobante/>",
		"2024/febrero/f003.xml": "<cfdi:Comprobante/>",
		"listado.txt":           "index",
	})

	t.Run("walk with month prefix", func(t *testing.T) {
		var visited []string
		err := Walk(zipPath, "2024/enero/", func(archive string, file *zip.File) error {
			if archive != zipPath {
				t.Errorf("archive = %s, want %s", archive, zipPath)
			}
			visited = append(visited, file.Name)
			return nil
		})

		if err != nil {
			t.Errorf("Walk() error = %v", err)
		}
		if len(visited) != 2 {
			t.Errorf("visited %d files, want 2", len(visited))
		}

		expected := map[string]bool{
			"2024/enero/f001.xml": true,
			"2024/enero/f002.xml": true,
		}
		for _, name := range visited {
			if !expected[name] {
				t.Errorf("unexpected file visited: %s", name)
			}
		}
	})

	t.Run("walk with no matching prefix", func(t *testing.T) {
		var visited int
		err := Walk(zipPath, "2023/", func(archive string, file *zip.File) error {
			visited++
			return nil
		})

		if err != nil {
			t.Errorf("Walk() error = %v", err)
		}
		if visited != 0 {
			t.Errorf("visited %d files, want 0", visited)
		}
	})

	t.Run("walk with empty prefix", func(t *testing.T) {
		var visited int
		err := Walk(zipPath, "", func(archive string, file *zip.File) error {
			visited++
			return nil
		})

		if err != nil {
			t.Errorf("Walk() error = %v", err)
		}
		if visited != 4 {
			t.Errorf("visited %d files, want 4", visited)
		}
	})

	t.Run("prefix matching is case sensitive", func(t *testing.T) {
		var visited int
		err := Walk(zipPath, "2024/Enero/", func(archive string, file *zip.File) error {
			visited++
			return nil
		})

		if err != nil {
			t.Errorf("Walk() error = %v", err)
		}
		if visited != 0 {
			t.Errorf("visited %d files, want 0", visited)
		}
	})

	t.Run("walkFn error stops processing", func(t *testing.T) {
		stopErr := errors.New("stop walking")
		var visited int
		err := Walk(zipPath, "2024/", func(archive string, file *zip.File) error {
			visited++
			if visited == 2 {
				return stopErr
			}
			return nil
		})

		if err != stopErr {
			t.Errorf("Walk() error = %v, want %v", err, stopErr)
		}
		if visited != 2 {
			t.Errorf("visited %d files, want 2 (early termination)", visited)
		}
	})
}

func TestWalk_InvalidArchive(t *testing.T) {
	t.Run("nonexistent file", func(t *testing.T) {
		err := Walk("/nonexistent/facturas.zip", "", func(archive string, file *zip.File) error {
			return nil
		})
		if err == nil {
			t.Error("Expected error for nonexistent file")
		}
	})

	t.Run("invalid zip file", func(t *testing.T) {
		invalidZip := filepath.Join(t.TempDir(), "invalid.zip")
		if err := os.WriteFile(invalidZip, []byte("not a zip file"), 0644); err != nil {
			t.Fatalf("Failed to create invalid zip: %v", err)
		}

		err := Walk(invalidZip, "", func(archive string, file *zip.File) error {
			return nil
		})
		if err == nil {
			t.Error("Expected error for invalid zip file")
		}
	})
}

func TestWalk_SkipsDirectories(t *testing.T) {
	zipPath := filepath.Join(t.TempDir(), "facturas.zip")
	zipFile, err := os.Create(zipPath)
	if err != nil {
		t.Fatalf("Failed to create zip file: %v", err)
	}

	w := zip.NewWriter(zipFile)

	dirHeader := &zip.FileHeader{Name: "2024/"}
	dirHeader.SetMode(os.ModeDir | 0755)
	if _, err := w.CreateHeader(dirHeader); err != nil {
		t.Fatalf("Failed to create directory: %v", err)
	}

	fw, err := w.Create("2024/f001.xml")
	if err != nil {
		t.Fatalf("Failed to create file: %v", err)
	}
	fw.Write([]byte("<cfdi:Comprobante/>"))

	w.Close()
	zipFile.Close()

	var visited []string
	err = Walk(zipPath, "", func(archive string, file *zip.File) error {
		visited = append(visited, file.Name)
		return nil
	})
	if err != nil {
		t.Errorf("Walk() error = %v", err)
	}

	if len(visited) != 1 || visited[0] != "2024/f001.xml" {
		t.Errorf("visited %v, want only 2024/f001.xml", visited)
	}
}

func TestWalk_RejectsPathTraversal(t *testing.T) {
	zipPath := filepath.Join(t.TempDir(), "facturas.zip")
	zipFile, err := os.Create(zipPath)
	if err != nil {
		t.Fatalf("Failed to create zip file: %v", err)
	}

	w := zip.NewWriter(zipFile)
	fw, err := w.CreateHeader(&zip.FileHeader{Name: "../escape.xml"})
	if err != nil {
		t.Fatalf("Failed to create file: %v", err)
	}
	fw.Write([]byte("<cfdi:Comprobante/>"))
	w.Close()
	zipFile.Close()

	err = Walk(zipPath, "", func(archive string, file *zip.File) error {
		t.Fatalf("walkFn must not be called for unsafe entries")
		return nil
	})
	if err == nil {
		t.Error("Expected error for path traversal entry")
	}
}

func TestWalk_FileContent(t *testing.T) {
	content := `<?xml version="1.0"?><cfdi:Comprobante Version="4.0"/>`
	zipPath := createTestArchive(t, map[string]string{"factura.xml": content})

	err := Walk(zipPath, "", func(archive string, file *zip.File) error {
		rc, err := file.Open()
		if err != nil {
			return err
		}
		defer rc.Close()

		buf := new(bytes.Buffer)
		if _, err := buf.ReadFrom(rc); err != nil {
			return err
		}
		if !bytes.Equal(buf.Bytes(), []byte(content)) {
			t.Errorf("content = %s, want %s", buf.Bytes(), content)
		}
		return nil
	})
	if err != nil {
		t.Errorf("Walk() error = %v", err)
	}
}
