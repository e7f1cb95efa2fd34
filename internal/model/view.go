package model

import "time"

// LocalTimeLayout formats timestamps in the studio's display timezone.
const LocalTimeLayout = "2006-01-02 15:04:05 MST"

// ClassView is the client-facing projection of a FitnessClass.
type ClassView struct {
	ID             string    `json:"id"`
	Category       Category  `json:"category"`
	Instructor     string    `json:"instructor"`
	StartTime      time.Time `json:"start_time"`
	LocalStartTime string    `json:"local_start_time"`
	TotalSlots     int       `json:"total_slots"`
	AvailableSlots int       `json:"available_slots"`
	IsAvailable    bool      `json:"is_available"`
}

// BookingView is the client-facing projection of a Booking and its class.
type BookingView struct {
	ID            string    `json:"id"`
	Class         ClassView `json:"class"`
	ClientName    string    `json:"client_name"`
	ClientEmail   string    `json:"client_email"`
	BookedAt      time.Time `json:"booked_at"`
	LocalBookedAt string    `json:"local_booked_at"`
	IsCancelled   bool      `json:"is_cancelled"`
}

// NewClassView projects c as seen at now. A nil loc means UTC.
func NewClassView(c FitnessClass, now time.Time, loc *time.Location) ClassView {
	return ClassView{
		ID:             c.ID,
		Category:       c.Category,
		Instructor:     c.Instructor,
		StartTime:      c.StartTime,
		LocalStartTime: localize(c.StartTime, loc),
		TotalSlots:     c.TotalSlots,
		AvailableSlots: c.AvailableSlots,
		IsAvailable:    c.IsBookable(now),
	}
}

// NewBookingView projects b. The booking's Class must be populated.
func NewBookingView(b Booking, now time.Time, loc *time.Location) BookingView {
	v := BookingView{
		ID:            b.ID,
		ClientName:    b.ClientName,
		ClientEmail:   b.ClientEmail,
		BookedAt:      b.BookedAt,
		LocalBookedAt: localize(b.BookedAt, loc),
		IsCancelled:   b.IsCancelled,
	}
	if b.Class != nil {
		v.Class = NewClassView(*b.Class, now, loc)
	} else {
		v.Class = ClassView{ID: b.ClassID}
	}
	return v
}

func localize(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(LocalTimeLayout)
}
