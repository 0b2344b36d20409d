package render

import (
	"bytes"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"smart-meter-monitor/internal/power"
)

func series(n int) []power.Metrics {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	out := make([]power.Metrics, n)
	for i := range out {
		out[i] = power.Metrics{
			Timestamp:     base.Add(time.Duration(i) * 500 * time.Millisecond),
			Voltage1:      230 + float64(i),
			Voltage2:      231,
			Voltage3:      229,
			Current1:      5,
			Current2:      5,
			Current3:      5,
			ActivePower:   1000 + float64(i*10),
			ReactivePower: 100,
			ApparentPower: 1100 + float64(i*10),
			PowerFactor:   0.9,
		}
	}
	return out
}

func TestDownsample(t *testing.T) {
	items := []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}

	got := Downsample(items, 4)
	want := []int{0, 3, 6, 9}
	if len(got) != len(want) {
		t.Fatalf("expected %d items, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("index %d: expected %d, got %d", i, want[i], got[i])
		}
	}

	if len(Downsample(items, 0)) != len(items) {
		t.Fatal("zero max should keep every item")
	}
	if len(Downsample(items, 20)) != len(items) {
		t.Fatal("max above length should keep every item")
	}
	if one := Downsample(items, 1); len(one) != 1 || one[0] != 9 {
		t.Fatalf("max of one should keep the newest item, got %v", one)
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, series(2)); err != nil {
		t.Fatalf("write csv: %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d", len(rows))
	}
	if rows[0][0] != "timestamp" || rows[0][10] != "power_factor" {
		t.Fatalf("unexpected header: %v", rows[0])
	}
	if rows[2][0] != "2024-03-01T12:00:00.5Z" {
		t.Fatalf("unexpected timestamp: %s", rows[2][0])
	}
	if rows[2][7] != "1010" || rows[2][10] != "0.9" {
		t.Fatalf("unexpected values: %v", rows[2])
	}
}

func TestWritePNGPanels(t *testing.T) {
	for _, panel := range []Panel{PanelPower, PanelVoltage, PanelCurrent} {
		var buf bytes.Buffer
		if err := WritePNG(&buf, series(5), panel); err != nil {
			t.Fatalf("%s panel: %v", panel, err)
		}
		if !bytes.HasPrefix(buf.Bytes(), []byte("\x89PNG")) {
			t.Fatalf("%s panel did not produce a PNG", panel)
		}
	}
}

func TestWritePNGTooFewPoints(t *testing.T) {
	var buf bytes.Buffer
	if err := WritePNG(&buf, series(1), PanelPower); !errors.Is(err, ErrTooFewPoints) {
		t.Fatalf("expected ErrTooFewPoints, got %v", err)
	}
}

func TestWriteFilesCreateDirectories(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "nested", "metrics.csv")
	pngPath := filepath.Join(dir, "nested", "metrics.png")

	if err := WriteCSVFile(csvPath, series(3)); err != nil {
		t.Fatalf("csv file: %v", err)
	}
	if err := WritePNGFile(pngPath, series(3), PanelPower); err != nil {
		t.Fatalf("png file: %v", err)
	}
	for _, p := range []string{csvPath, pngPath} {
		if info, err := os.Stat(p); err != nil || info.Size() == 0 {
			t.Fatalf("expected non-empty %s: %v", p, err)
		}
	}
}

func TestParsePanel(t *testing.T) {
	if p, err := ParsePanel(""); err != nil || p != PanelPower {
		t.Fatalf("empty panel should default to power, got %q %v", p, err)
	}
	if _, err := ParsePanel("energy"); err == nil {
		t.Fatal("unknown panel should fail")
	}
}
