// Package export renders participant lists for download.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"
)

// DateLayout formats the registration date column.
const DateLayout = "2006-01-02 15:04"

// Header is the first CSV line.
var Header = []string{"Student Username", "Email", "Registration Date", "Status"}

// Participant is one CSV row.
type Participant struct {
	Username     string
	Email        string
	RegisteredAt time.Time
	Status       string
}

// Filename is the attachment name for an event's participant list.
func Filename(eventID uint) string {
	return fmt.Sprintf("participants_%d.csv", eventID)
}

// WriteCSV writes the header and one row per participant, in the given order.
func WriteCSV(w io.Writer, participants []Participant) error {
	cw := csv.NewWriter(w)
	cw.UseCRLF = true

	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, p := range participants {
		row := []string{p.Username, p.Email, p.RegisteredAt.Format(DateLayout), p.Status}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
