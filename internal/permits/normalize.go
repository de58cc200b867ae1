package permits

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// Record — сырая запись upstream API.
type Record map[string]any

// Permit — нормализованная строка отчёта. Порядок полей — порядок колонок.
// nil — отсутствующее или непарсящееся значение.
type Permit struct {
	ApplicationNumber    *string  `parquet:"application_number,optional" json:"application_number"`
	PermitRecordID       *int64   `parquet:"permit_record_id,optional" json:"permit_record_id"`
	EstateAddress        *string  `parquet:"estate_address,optional" json:"estate_address"`
	PermitDescription    *string  `parquet:"permit_description,optional" json:"permit_description"`
	PermitEstCost        *float32 `parquet:"permit_est_cost,optional" json:"permit_est_cost"`
	PermitExpirationDate *int32   `parquet:"permit_expiration_date,optional,date" json:"permit_expiration_date"`
	PermitFileDate       *int32   `parquet:"permit_file_date,optional,date" json:"permit_file_date"`
	RevisedCost          *float32 `parquet:"revised_cost,optional" json:"revised_cost"`
	ApplicationStatus    *string  `parquet:"application_status,optional" json:"application_status"`
	StatusDate           *string  `parquet:"status_date,optional" json:"status_date"`
	EstateExistingUse    *string  `parquet:"estate_existing_use,optional" json:"estate_existing_use"`
	EstateProposedUse    *string  `parquet:"estate_proposed_use,optional" json:"estate_proposed_use"`
}

// Переименование колонок upstream → каталог.
var renames = map[string]string{
	"estimated_cost":  "permit_est_cost",
	"expiration_date": "permit_expiration_date",
	"file_date":       "permit_file_date",
	"description":     "permit_description",
	"proposed_use":    "estate_proposed_use",
	"record_id":       "permit_record_id",
	"address":         "estate_address",
	"existing_use":    "estate_existing_use",
	"status":          "application_status",
}

// Columns — колонки файла в порядке записи.
var Columns = []string{
	"application_number",
	"permit_record_id",
	"estate_address",
	"permit_description",
	"permit_est_cost",
	"permit_expiration_date",
	"permit_file_date",
	"revised_cost",
	"application_status",
	"status_date",
	"estate_existing_use",
	"estate_proposed_use",
}

// Normalize переименовывает колонки и приводит типы.
// Лишние колонки отбрасываются, недостающие остаются nil.
func Normalize(records []Record) []Permit {
	out := make([]Permit, 0, len(records))
	for _, rec := range records {
		out = append(out, normalizeOne(rename(rec)))
	}
	return out
}

func rename(rec Record) Record {
	renamed := make(Record, len(rec))
	for k, v := range rec {
		if to, ok := renames[k]; ok {
			k = to
		}
		renamed[k] = v
	}
	return renamed
}

func normalizeOne(r Record) Permit {
	return Permit{
		ApplicationNumber:    toString(r["application_number"]),
		PermitRecordID:       toInt64(r["permit_record_id"]),
		EstateAddress:        toString(r["estate_address"]),
		PermitDescription:    toString(r["permit_description"]),
		PermitEstCost:        toFloat32(r["permit_est_cost"]),
		PermitExpirationDate: toDate(r["permit_expiration_date"]),
		PermitFileDate:       toDate(r["permit_file_date"]),
		RevisedCost:          toFloat32(r["revised_cost"]),
		ApplicationStatus:    toString(r["application_status"]),
		StatusDate:           toString(r["status_date"]),
		EstateExistingUse:    toString(r["estate_existing_use"]),
		EstateProposedUse:    toString(r["estate_proposed_use"]),
	}
}

func toString(v any) *string {
	var s string
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		s = x
	case float64:
		if math.IsNaN(x) {
			return nil
		}
		s = strconv.FormatFloat(x, 'f', -1, 64)
	case json.Number:
		s = x.String()
	case bool:
		s = strconv.FormatBool(x)
	default:
		raw, err := json.Marshal(x)
		if err != nil {
			return nil
		}
		s = string(raw)
	}

	if s == "" || strings.EqualFold(s, "nan") {
		return nil
	}
	return &s
}

func toNumber(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, !math.IsNaN(x) && !math.IsInf(x, 0)
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil && !math.IsNaN(f) && !math.IsInf(f, 0)
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	default:
		return 0, false
	}
}

// toInt64 возвращает nil для дробных чисел и значений вне диапазона int64.
func toInt64(v any) *int64 {
	f, ok := toNumber(v)
	if !ok || f != math.Trunc(f) {
		return nil
	}
	// float64(math.MaxInt64) == 2^63, само значение уже не помещается
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return nil
	}
	i := int64(f)
	return &i
}

func toFloat32(v any) *float32 {
	f, ok := toNumber(v)
	if !ok {
		return nil
	}
	f32 := float32(f)
	return &f32
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006",
}

// toDate парсит дату и возвращает количество дней от эпохи (Parquet DATE).
func toDate(v any) *int32 {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	s = strings.TrimSpace(s)

	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		days := int32(t.UTC().Truncate(24*time.Hour).Unix() / 86400)
		return &days
	}
	return nil
}

// DateOf переводит значение колонки DATE обратно во время.
func DateOf(days int32) time.Time {
	return time.Unix(int64(days)*86400, 0).UTC()
}
