package grading

// Event reports one finished submission. Done counts finished submissions
// so far, including this one.
type Event struct {
	Index      int
	Done       int
	Total      int
	StudentID  string
	SourcePath string
	Status     Status
	RawScore   float64
}
