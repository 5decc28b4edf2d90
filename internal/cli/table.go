package cli

import (
	"time"

	"github.com/pterm/pterm"

	"dasladen/internal/storage"
)

const runTimeFormat = "2006-01-02 15:04:05"

// runsTable renders newest first.
func runsTable(runs []storage.RunRecord) pterm.TableData {
	data := pterm.TableData{{"Started", "Name", "Kind", "Elapsed", "Result"}}
	for i := len(runs) - 1; i >= 0; i-- {
		r := runs[i]
		result := "ok"
		if !r.OK() {
			result = r.Error
		}
		data = append(data, []string{
			r.Started.Local().Format(runTimeFormat),
			r.Name,
			r.Kind,
			r.Duration.Round(10 * time.Millisecond).String(),
			result,
		})
	}
	return data
}
