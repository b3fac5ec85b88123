// Package school defines the administration collections (faculty,
// students, galleries, announcements, fees, exam routines, books, audio
// messages, branding) as schemas over one generic collection engine.
package school

import "time"

// Collection keys. One key per logical entity collection; values are the
// whole collection serialized as one JSON blob.
const (
	KeyTeachers      = "teachers"
	KeyStudents      = "students"
	KeyAnnouncements = "announcements"
	KeyGallery       = "gallery"
	KeyFees          = "fees"
	KeyExamRoutines  = "exam-routines"
	KeyBooks         = "books"
	KeyAudioMessages = "audio-messages"
	KeyBranding      = "branding"
)

// Teacher is a faculty member profile
type Teacher struct {
	ID       string `json:"id" validate:"required"`
	Name     string `json:"name" validate:"required"`
	Subject  string `json:"subject" validate:"required"`
	Phone    string `json:"phone,omitempty"`
	PhotoURL string `json:"photo_url,omitempty" validate:"omitempty,url"`
}

// ItemID implements Item
func (t Teacher) ItemID() string { return t.ID }

// Student is an enrolled (or admitted) student record
type Student struct {
	ID            string `json:"id" validate:"required"`
	Name          string `json:"name" validate:"required"`
	ClassName     string `json:"class_name" validate:"required"`
	Roll          int    `json:"roll" validate:"gte=0"`
	GuardianPhone string `json:"guardian_phone,omitempty"`
}

// ItemID implements Item
func (s Student) ItemID() string { return s.ID }

// Announcement is a notice shown to all visitors
type Announcement struct {
	ID       string    `json:"id" validate:"required"`
	Title    string    `json:"title" validate:"required"`
	Body     string    `json:"body,omitempty"`
	PostedAt time.Time `json:"posted_at"`
}

// ItemID implements Item
func (a Announcement) ItemID() string { return a.ID }

// GalleryImage is a photo in the school gallery
type GalleryImage struct {
	ID      string `json:"id" validate:"required"`
	Caption string `json:"caption,omitempty"`
	URL     string `json:"url" validate:"required,url"`
}

// ItemID implements Item
func (g GalleryImage) ItemID() string { return g.ID }

// FeeRecord tracks a fee or payment entry for a student.
//
// Fee records ride the same last-write-wins key as every other collection:
// concurrent edits from two admin contexts resolve by arrival order with no
// merge. Keep fee edits on a single admin context until the store grows a
// conflict story for financial data.
type FeeRecord struct {
	ID          string     `json:"id" validate:"required"`
	StudentID   string     `json:"student_id" validate:"required"`
	Month       string     `json:"month" validate:"required"`
	AmountCents int64      `json:"amount_cents" validate:"gte=0"`
	PaidAt      *time.Time `json:"paid_at,omitempty"`
}

// ItemID implements Item
func (f FeeRecord) ItemID() string { return f.ID }

// Paid reports whether the fee has been settled
func (f FeeRecord) Paid() bool { return f.PaidAt != nil }

// ExamRoutine is one entry of a class exam schedule
type ExamRoutine struct {
	ID        string    `json:"id" validate:"required"`
	ClassName string    `json:"class_name" validate:"required"`
	Subject   string    `json:"subject" validate:"required"`
	Date      time.Time `json:"date"`
	StartTime string    `json:"start_time,omitempty"`
	EndTime   string    `json:"end_time,omitempty"`
}

// ItemID implements Item
func (e ExamRoutine) ItemID() string { return e.ID }

// BookRecommendation is a suggested reading entry
type BookRecommendation struct {
	ID     string `json:"id" validate:"required"`
	Title  string `json:"title" validate:"required"`
	Author string `json:"author,omitempty"`
	Link   string `json:"link,omitempty" validate:"omitempty,url"`
}

// ItemID implements Item
func (b BookRecommendation) ItemID() string { return b.ID }

// AudioMessage is a recorded message from the administration
type AudioMessage struct {
	ID              string `json:"id" validate:"required"`
	Title           string `json:"title" validate:"required"`
	URL             string `json:"url" validate:"required,url"`
	DurationSeconds int    `json:"duration_seconds" validate:"gte=0"`
}

// ItemID implements Item
func (a AudioMessage) ItemID() string { return a.ID }

// Branding holds the single school identity object
type Branding struct {
	SchoolName string `json:"school_name" validate:"required"`
	TagLine    string `json:"tag_line,omitempty"`
	LogoURL    string `json:"logo_url,omitempty" validate:"omitempty,url"`
	ThemeColor string `json:"theme_color,omitempty" validate:"omitempty,hexcolor"`
}
