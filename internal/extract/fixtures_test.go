package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/rohankatakam/reqtaker/internal/drive"
)

func zipOf(t *testing.T, parts map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range parts {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

const docxBody = `<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>
<w:p><w:r><w:t>Project Overview</w:t></w:r></w:p>
<w:p><w:r><w:t xml:space="preserve">Users </w:t></w:r><w:r><w:t>must log in.</w:t></w:r></w:p>
<w:p></w:p>
<w:tbl>
<w:tr><w:tc><w:p><w:r><w:t>ID</w:t></w:r></w:p></w:tc><w:tc><w:p><w:r><w:t>Requirement</w:t></w:r></w:p></w:tc></w:tr>
<w:tr><w:tc><w:p><w:r><w:t>R1</w:t></w:r></w:p></w:tc><w:tc><w:p><w:r><w:t>Login</w:t></w:r></w:p></w:tc></w:tr>
</w:tbl>
</w:body></w:document>`

func docxFixture(t *testing.T) []byte {
	return zipOf(t, map[string]string{"word/document.xml": docxBody})
}

const slideTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<p:sld xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main" xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main">
<p:cSld><p:spTree>%s</p:spTree></p:cSld></p:sld>`

func pptxFixture(t *testing.T) []byte {
	slide1 := fmt.Sprintf(slideTemplate,
		`<p:sp><p:txBody><a:p><a:r><a:t>Roadmap</a:t></a:r></a:p><a:p><a:r><a:t>Q3 launch</a:t></a:r></a:p></p:txBody></p:sp>
<p:graphicFrame><a:graphic><a:graphicData><a:tbl>
<a:tr><a:tc><a:txBody><a:p><a:r><a:t>Phase</a:t></a:r></a:p></a:txBody></a:tc><a:tc><a:txBody><a:p><a:r><a:t>Date</a:t></a:r></a:p></a:txBody></a:tc></a:tr>
</a:tbl></a:graphicData></a:graphic></p:graphicFrame>`)
	slide2 := fmt.Sprintf(slideTemplate,
		`<p:sp><p:txBody><a:p><a:r><a:t>Welcome</a:t></a:r></a:p></p:txBody></p:sp><p:sp><p:txBody><a:p></a:p></p:txBody></p:sp>`)

	return zipOf(t, map[string]string{
		"ppt/presentation.xml": `<?xml version="1.0"?>
<p:presentation xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main" xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships">
<p:sldIdLst><p:sldId id="256" r:id="rId3"/><p:sldId id="257" r:id="rId2"/></p:sldIdLst></p:presentation>`,
		"ppt/_rels/presentation.xml.rels": `<?xml version="1.0"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId2" Target="slides/slide1.xml"/><Relationship Id="rId3" Target="slides/slide2.xml"/></Relationships>`,
		"ppt/slides/slide1.xml": slide1,
		"ppt/slides/slide2.xml": slide2,
	})
}

func xlsxFixture(t *testing.T) []byte {
	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetCellValue("Sheet1", "A1", "Name"))
	require.NoError(t, f.SetCellValue("Sheet1", "B1", "Priority"))
	require.NoError(t, f.SetCellValue("Sheet1", "A2", "Login"))
	require.NoError(t, f.SetCellValue("Sheet1", "B2", "High"))
	require.NoError(t, f.SetCellValue("Sheet1", "A4", "Export"))
	_, err := f.NewSheet("Notes")
	require.NoError(t, err)
	require.NoError(t, f.SetCellValue("Notes", "A1", "n/a"))

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

// pdfFixture writes a one-page PDF with a correct xref table.
func pdfFixture(text, title string) []byte {
	content := fmt.Sprintf("BT /F1 24 Tf 72 720 Td (%s) Tj ET", text)
	objs := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 4 0 R >> >> /Contents 5 0 R >>",
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
		fmt.Sprintf("<< /Title (%s) >>", title),
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, o := range objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, o)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objs)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R /Info 6 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return buf.Bytes()
}

// fakeSource is an in-memory folder tree.
type fakeSource struct {
	mu        sync.Mutex
	folders   map[string]drive.Folder
	files     map[string][]drive.File
	children  map[string][]drive.Folder
	blobs     map[string][]byte
	exports   map[string][]byte // id + "|" + mime
	downloads int
	folderErr error
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		folders:  map[string]drive.Folder{},
		files:    map[string][]drive.File{},
		children: map[string][]drive.Folder{},
		blobs:    map[string][]byte{},
		exports:  map[string][]byte{},
	}
}

func (s *fakeSource) addFolder(parent, id, name string) {
	s.folders[id] = drive.Folder{ID: id, Name: name}
	if parent != "" {
		s.children[parent] = append(s.children[parent], drive.Folder{ID: id, Name: name})
	}
}

func (s *fakeSource) addFile(parent string, f drive.File, data []byte) {
	s.files[parent] = append(s.files[parent], f)
	if data != nil {
		s.blobs[f.ID] = data
	}
}

func (s *fakeSource) Folder(_ context.Context, id string) (*drive.Folder, error) {
	if s.folderErr != nil {
		return nil, s.folderErr
	}
	f, ok := s.folders[id]
	if !ok {
		return nil, fmt.Errorf("%w: Folder %s not found. Please check the folder ID and permissions.", drive.ErrFolderNotFound, id)
	}
	return &f, nil
}

func (s *fakeSource) ListFiles(_ context.Context, parentID string) ([]drive.File, error) {
	return append([]drive.File(nil), s.files[parentID]...), nil
}

func (s *fakeSource) ListFolders(_ context.Context, parentID string) ([]drive.Folder, error) {
	return s.children[parentID], nil
}

func (s *fakeSource) Download(_ context.Context, id string) ([]byte, error) {
	s.mu.Lock()
	s.downloads++
	s.mu.Unlock()
	data, ok := s.blobs[id]
	if !ok {
		return nil, fmt.Errorf("file %s not found", id)
	}
	return data, nil
}

func (s *fakeSource) Export(_ context.Context, id, mimeType string) ([]byte, error) {
	data, ok := s.exports[id+"|"+mimeType]
	if !ok {
		return nil, fmt.Errorf("export %s as %s not supported", id, mimeType)
	}
	return data, nil
}
