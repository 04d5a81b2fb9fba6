package sessions

import "time"

// Session groups the uploaded files and selections of one client workspace.
type Session struct {
	ID                 string         `json:"session_id"`
	Files              []FileRecord   `json:"files"`
	SelectedFrameworks []string       `json:"selected_frameworks"`
	AssessmentMeta     AssessmentMeta `json:"assessment_meta"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// FileRecord describes one uploaded document.
type FileRecord struct {
	ID           string    `json:"id"`
	OriginalName string    `json:"original_name"`
	SizeBytes    int64     `json:"size_bytes"`
	MimeType     string    `json:"mime_type"`
	StorageKey   string    `json:"-"`
	UploadedAt   time.Time `json:"uploaded_at"`
}

// AssessmentMeta is optional reviewer-provided context.
type AssessmentMeta struct {
	VendorName   string `json:"vendor_name,omitempty"`
	ReviewedBy   string `json:"reviewed_by,omitempty"`
	TicketNumber string `json:"ticket_number,omitempty"`
}

// TotalBytes sums the sizes of all files in the session.
func (s Session) TotalBytes() int64 {
	var total int64
	for _, f := range s.Files {
		total += f.SizeBytes
	}
	return total
}

// File returns the file with the given id.
func (s Session) File(id string) (FileRecord, bool) {
	for _, f := range s.Files {
		if f.ID == id {
			return f, true
		}
	}
	return FileRecord{}, false
}
