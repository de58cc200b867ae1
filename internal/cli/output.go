package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
)

// Output печатает ответы API: таблицей в stdout или JSON.
// Сообщения о ходе команды идут в stderr, чтобы stdout оставался пригодным для pipe.
type Output struct {
	jsonMode bool
	w        io.Writer
	errW     io.Writer
}

// NewOutput создаёт Output. Если jsonMode=true, данные выводятся в JSON.
func NewOutput(jsonMode bool) *Output {
	return &Output{
		jsonMode: jsonMode,
		w:        os.Stdout,
		errW:     os.Stderr,
	}
}

// Print выводит строки таблицы или jsonData целиком.
func (o *Output) Print(headers []string, rows [][]string, jsonData any) {
	if o.jsonMode {
		o.JSON(jsonData)
		return
	}
	o.Table(headers, rows)
}

// Table выводит выровненную таблицу с подчёркнутыми заголовками.
func (o *Output) Table(headers []string, rows [][]string) {
	tw := tabwriter.NewWriter(o.w, 0, 0, 2, ' ', 0)

	underline := make([]string, len(headers))
	for i, h := range headers {
		underline[i] = strings.Repeat("-", len(h))
	}
	fmt.Fprintln(tw, strings.Join(headers, "\t"))
	fmt.Fprintln(tw, strings.Join(underline, "\t"))
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}

	tw.Flush()
}

// JSON выводит v с отступами.
func (o *Output) JSON(v any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		o.Error("encode output: " + err.Error())
	}
}

// Success выводит сообщение о ходе команды.
func (o *Output) Success(msg string) {
	fmt.Fprintln(o.errW, msg)
}

// Error выводит сообщение об ошибке.
func (o *Output) Error(msg string) {
	fmt.Fprintln(o.errW, "Error: "+msg)
}

// Task выводит один handle.
func (o *Output) Task(t *TaskResponse) {
	o.Print(
		[]string{"TASK", "JOB_ID", "KIND", "STATE", "DETAIL"},
		[][]string{{t.ID, t.JobID, t.Kind, t.State, taskDetail(t)}},
		t,
	)
}

// Job выводит агрегированное состояние job'а и его tasks.
func (o *Output) Job(job *JobResponse) {
	rows := make([][]string, len(job.Tasks))
	for i := range job.Tasks {
		t := &job.Tasks[i]
		rows[i] = []string{t.ID, t.Kind, t.State, taskDetail(t)}
	}

	o.Success(fmt.Sprintf("Job %s: %s", job.JobID, job.State))
	o.Print([]string{"TASK", "KIND", "STATE", "DETAIL"}, rows, job)
}

// Promote выводит стадии promote по одному члену на строку, затем итог.
// Для FAILURE перечисляет упавших членов и возвращает ошибку с типом остановки.
func (o *Output) Promote(res *PromoteResponse) error {
	var rows [][]string
	for _, s := range res.Stages {
		for _, m := range s.Members {
			detail := m.Cause
			if detail == "" {
				detail = summarize(m.Value)
			}
			if !m.Resolved {
				detail = "(unresolved) " + detail
			}
			rows = append(rows, []string{strconv.Itoa(s.Index), s.Name, m.Kind, m.State, strings.TrimSpace(detail)})
		}
	}
	o.Print([]string{"STAGE", "NAME", "KIND", "STATE", "DETAIL"}, rows, res)

	if f := res.Failure; f != nil {
		o.Error(fmt.Sprintf("Stopped at stage %d (%s): %s", f.Stage, f.StageName, f.Message))
		for _, m := range f.Members {
			fmt.Fprintf(o.errW, "  member %d %s %s: %s\n", m.Index, m.Kind, m.TaskID, m.Cause)
		}
		return fmt.Errorf("promote %s: %s", res.State, f.Kind)
	}

	o.Success(fmt.Sprintf("Promoted %s into %s partition %s in %dms",
		res.SourceJobID, res.Stack, res.Partition, res.DurationMs))
	return nil
}

func taskDetail(t *TaskResponse) string {
	if t.Error != "" {
		return t.Error
	}
	return summarize(t.Result)
}

// summarize сворачивает результат в строку key=value, ключи по алфавиту.
// Вложенные значения пропускаются: они есть в JSON-выводе.
func summarize(m map[string]any) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		switch v := m[k].(type) {
		case map[string]any, []any:
			continue
		default:
			parts = append(parts, fmt.Sprintf("%s=%v", k, v))
		}
	}
	return strings.Join(parts, " ")
}
