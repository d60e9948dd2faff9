package pdf

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildPDF writes a minimal single-font PDF with one page per entry in pages.
func buildPDF(t *testing.T, pages ...string) []byte {
	t.Helper()

	var objects []string
	// 1: catalog, 2: pages tree, 3: font, then a page and content pair per page.
	kids := ""
	for i := range pages {
		kids += fmt.Sprintf("%d 0 R ", 4+2*i)
	}
	objects = append(objects,
		"<< /Type /Catalog /Pages 2 0 R >>",
		fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", kids, len(pages)),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
	)
	for i, text := range pages {
		content := fmt.Sprintf("BT /F1 12 Tf 72 712 Td (%s) Tj ET", text)
		objects = append(objects,
			fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", 5+2*i),
			fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
		)
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestIsPDF(t *testing.T) {
	assert.True(t, IsPDF([]byte("%PDF-1.7\n...")))
	assert.False(t, IsPDF([]byte("hello")))
	assert.False(t, IsPDF(nil))
}

func TestExtract(t *testing.T) {
	e := NewExtractor(testLogger())

	t.Run("extracts every page", func(t *testing.T) {
		data := buildPDF(t, "Hello world", "Second page")

		text, err := e.Extract(context.Background(), data)
		require.NoError(t, err)
		assert.Contains(t, text, "Hello world")
		assert.Contains(t, text, "Second page")
	})

	t.Run("rejects non-PDF input", func(t *testing.T) {
		_, err := e.Extract(context.Background(), []byte("plain text"))
		assert.ErrorIs(t, err, ErrNotPDF)
	})

	t.Run("fails on a truncated file", func(t *testing.T) {
		_, err := e.Extract(context.Background(), []byte("%PDF-1.4\n1 0 obj\n<<"))
		assert.Error(t, err)
	})

	t.Run("stops on cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := e.Extract(ctx, buildPDF(t, "Hello"))
		assert.ErrorIs(t, err, context.Canceled)
	})
}
