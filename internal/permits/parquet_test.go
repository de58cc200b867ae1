package permits

import (
	"testing"
)

func samplePermits(n int) []Permit {
	records := make([]Record, n)
	for i := range records {
		records[i] = Record{
			"application_number": "app",
			"record_id":          float64(i + 1),
			"estimated_cost":     float64(100 * (i + 1)),
			"file_date":          "2024-03-01",
		}
	}
	return Normalize(records)
}

func TestParquet_WriteAndRead(t *testing.T) {
	rows := samplePermits(3)

	data, err := EncodeParquet(rows)
	if err != nil {
		t.Fatalf("EncodeParquet: %v", err)
	}
	if string(data[:4]) != "PAR1" {
		t.Errorf("missing parquet magic, got %q", data[:4])
	}

	got, err := ReadParquet(data)
	if err != nil {
		t.Fatalf("ReadParquet: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(got))
	}
	if got[2].PermitRecordID == nil || *got[2].PermitRecordID != 3 {
		t.Errorf("row 2 permit_record_id = %v", got[2].PermitRecordID)
	}
	if got[0].EstateAddress != nil {
		t.Error("null column must stay null")
	}
}

func TestEncodeChunks(t *testing.T) {
	chunks, err := EncodeChunks("data/job", samplePermits(5), 2)
	if err != nil {
		t.Fatalf("EncodeChunks: %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}

	wantNames := []string{"data/job_000.parquet", "data/job_001.parquet", "data/job_002.parquet"}
	wantRows := []int{2, 2, 1}
	for i, c := range chunks {
		if c.Name != wantNames[i] {
			t.Errorf("chunk %d name = %s, want %s", i, c.Name, wantNames[i])
		}
		if c.Rows != wantRows[i] {
			t.Errorf("chunk %d rows = %d, want %d", i, c.Rows, wantRows[i])
		}
	}
}

func TestEncodeChunks_NoChunking(t *testing.T) {
	chunks, err := EncodeChunks("data/job", samplePermits(5), 0)
	if err != nil {
		t.Fatalf("EncodeChunks: %v", err)
	}
	if len(chunks) != 1 || chunks[0].Rows != 5 {
		t.Errorf("expected single chunk with 5 rows, got %+v", chunks)
	}
}
